package extract

import (
	"context"
	"regexp"
	"strings"

	"lattice/internal/store"
)

// Cheap extraction: regex passes for technical identifiers. No model calls,
// runs on every document instantly. Person/organization extraction is left
// to a real external extractor; identifiers are the one class where exact
// patterns beat anything smarter.

var (
	emailRegex = regexp.MustCompile(`\b[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}\b`)
	phoneRegex = regexp.MustCompile(`\+\d{1,3}[\s\-()]*\d[\d\s\-()]{6,14}\d`)
	urlRegex   = regexp.MustCompile(`https?://[^\s<>"')\]]+`)
	asnRegex   = regexp.MustCompile(`\bAS\d{2,6}\b`)
)

// CheapExtractor finds technical identifiers (emails, phone numbers, URLs,
// ASNs) via exact patterns. It asserts no dated claims.
type CheapExtractor struct{}

// Mentions implements Extractor. Identifier mentions carry a normalized
// hint so the same phone number written two ways resolves to one entity.
func (CheapExtractor) Mentions(_ context.Context, doc *store.Document) ([]Mention, error) {
	if doc == nil {
		return nil, nil
	}
	text := doc.Title + " " + doc.Body
	var out []Mention
	seen := make(map[string]bool)

	add := func(surface, typ, hint string) {
		key := typ + "\x00" + hint
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, Mention{
			SurfaceText:    surface,
			Type:           typ,
			SpanConfidence: 1.0, // exact pattern match
			Hint:           hint,
		})
	}

	for _, m := range emailRegex.FindAllString(text, -1) {
		add(m, "email", strings.ToLower(m))
	}
	for _, m := range phoneRegex.FindAllString(text, -1) {
		add(m, "phone", NormalizePhone(m))
	}
	for _, m := range urlRegex.FindAllString(text, -1) {
		add(m, "url", strings.ToLower(strings.TrimRight(m, ".,;")))
	}
	for _, m := range asnRegex.FindAllString(text, -1) {
		add(m, "other", strings.ToUpper(m))
	}
	return out, nil
}

// Claims implements Extractor; the cheap pass asserts no dated claims.
func (CheapExtractor) Claims(context.Context, *store.Document) ([]DatedClaim, error) {
	return nil, nil
}

// NormalizePhone strips formatting so "+49 151 1234-5678" and
// "+49(151)12345678" join on exact match.
func NormalizePhone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '+' || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Identifiers returns the normalized technical identifiers in a document,
// used by the cross-report deep-dive join.
func Identifiers(doc *store.Document) []string {
	mentions, _ := CheapExtractor{}.Mentions(context.Background(), doc)
	var out []string
	for _, m := range mentions {
		out = append(out, m.Type+":"+m.Hint)
	}
	return out
}
