// Package canon normalizes raw artifacts, computes content-addressed
// identity, and deduplicates through the persistence gateway.
package canon

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"lattice/internal/store"
)

// Artifact is one raw collected item: text plus metadata, as produced by
// the collectors. URL may be empty for non-web sources.
type Artifact struct {
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	SourceType  string     `json:"source_type"`
	SourceFile  string     `json:"source_file"`
	DataType    string     `json:"data_type"`
	ReportID    string     `json:"report_id"`
	TrustTier   store.Tier `json:"trust_tier"`
	PublishedAt string     `json:"published_at"`
	CollectedAt string     `json:"collected_at"`
	Raw         []byte     `json:"raw"`
}

// ParseError marks an artifact whose content cannot be decoded as text.
// The caller quarantines the artifact and continues the batch.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return "parse artifact: " + e.Reason }

// NormalizeURL lowercases and trims the URL. Empty stays empty.
func NormalizeURL(url string) string {
	return strings.ToLower(strings.TrimSpace(url))
}

// NormalizeBody strips insignificant whitespace: runs of spaces, tabs and
// newlines collapse to a single space, leading/trailing whitespace dropped.
// Two artifacts that differ only in whitespace hash identically.
func NormalizeBody(body string) string {
	return strings.Join(strings.Fields(body), " ")
}

// Hash computes the document ID: sha256 over normalized URL ++ normalized body.
func Hash(url, body string) string {
	h := sha256.New()
	h.Write([]byte(NormalizeURL(url)))
	h.Write([]byte{0}) // keep url/body boundaries unambiguous
	h.Write([]byte(NormalizeBody(body)))
	return hex.EncodeToString(h.Sum(nil))
}

// Ingest canonicalizes an artifact and persists it idempotently.
//
// Re-ingesting byte-identical content never creates a second document: the
// check-and-insert is a single compare-and-set on the document ID, so two
// concurrent ingestions of identical content converge on one record. The
// duplicate path returns the stored document with created=false.
func Ingest(ctx context.Context, gw store.Store, art Artifact) (*store.Document, bool, error) {
	if !utf8.ValidString(art.Body) {
		return nil, false, &ParseError{Reason: "body is not valid UTF-8"}
	}
	if art.Body == "" && art.URL == "" {
		return nil, false, &ParseError{Reason: "artifact has neither URL nor body"}
	}
	tier := art.TrustTier
	if tier == "" {
		tier = store.TierUnverified
	}
	if !store.ValidTier(tier) {
		return nil, false, fmt.Errorf("unknown trust tier %q", art.TrustTier)
	}
	collected := art.CollectedAt
	if collected == "" {
		collected = time.Now().UTC().Format(time.RFC3339)
	}

	doc := &store.Document{
		ID:          Hash(art.URL, art.Body),
		SourceURL:   NormalizeURL(art.URL),
		SourceType:  art.SourceType,
		SourceFile:  art.SourceFile,
		DataType:    art.DataType,
		TrustTier:   tier,
		Title:       strings.TrimSpace(art.Title),
		Body:        NormalizeBody(art.Body),
		CollectedAt: collected,
		PublishedAt: art.PublishedAt,
		RawPayload:  art.Raw,
	}
	if art.ReportID != "" {
		doc.ReportIDs = []string{art.ReportID}
	}

	created, err := gw.PutDocument(ctx, doc)
	if err != nil {
		return nil, false, fmt.Errorf("persist document: %w", err)
	}
	if !created {
		existing, err := gw.GetDocument(ctx, doc.ID)
		if err != nil {
			return nil, false, fmt.Errorf("read deduplicated document: %w", err)
		}
		return existing, false, nil
	}

	// Trust assignment rides along with first ingestion, one record per document.
	rec := &store.TrustRecord{DocumentID: doc.ID, Tier: tier}
	if err := gw.PutTrustRecord(ctx, rec); err != nil {
		return nil, false, fmt.Errorf("persist trust record: %w", err)
	}
	return doc, true, nil
}
