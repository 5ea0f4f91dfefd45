// Package score turns trust tiers and corroboration into claim confidence,
// and attributes narratives to the sources that propagate them.
package score

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strings"

	"lattice/internal/store"
)

// ErrTrustViolation is returned when disinformation-tier evidence reaches
// the factual scoring path. Callers split evidence first; disinformation
// feeds attribution, never confidence.
var ErrTrustViolation = errors.New("disinformation evidence in factual set")

// Evidence is one document backing a claim.
type Evidence struct {
	DocumentID string
	Source     string // URL or host the document came from
	Tier       store.Tier
}

// Result is the scored outcome for one claim.
type Result struct {
	Confidence  float64 `json:"confidence"`
	Independent int     `json:"independent"` // distinct independent source groups
	Total       int     `json:"total"`
	Underflow   bool    `json:"underflow,omitempty"` // unverified-only, under-corroborated
}

// Config holds the scoring tunables. SourceKey reduces a source string to
// its independence key; evidence with equal keys never corroborates itself.
type Config struct {
	Weights   map[store.Tier]float64
	K         float64 // diminishing-returns constant
	SourceKey func(source string) string
}

// DefaultWeights returns the tier weight table. Disinformation is zero by
// definition: it can never raise confidence.
func DefaultWeights() map[store.Tier]float64 {
	return map[store.Tier]float64{
		store.TierTrusted:        1.0,
		store.TierUnverified:     0.5,
		store.TierLeaked:         0.4,
		store.TierAIGenerated:    0.2,
		store.TierDisinformation: 0.0,
	}
}

// DefaultConfig returns weights, K=1 and registrable-domain independence.
func DefaultConfig() Config {
	return Config{Weights: DefaultWeights(), K: 1.0, SourceKey: RegistrableDomain}
}

// Scorer computes claim confidence.
type Scorer struct {
	cfg Config
}

// New returns a Scorer, filling unset config fields with defaults.
func New(cfg Config) *Scorer {
	def := DefaultConfig()
	if cfg.Weights == nil {
		cfg.Weights = def.Weights
	}
	if cfg.K <= 0 {
		cfg.K = def.K
	}
	if cfg.SourceKey == nil {
		cfg.SourceKey = def.SourceKey
	}
	return &Scorer{cfg: cfg}
}

// Score computes confidence for a claim as sum/(K+sum) over the weights of
// independent evidence. Within one independence group only the strongest
// document counts: ten articles from one outlet corroborate once.
//
// Unverified-only claims with fewer than two independent sources are capped
// at 0.5 and flagged Underflow.
func (s *Scorer) Score(evidence []Evidence) (Result, error) {
	groups := make(map[string]float64)
	onlyUnverified := true
	for _, ev := range evidence {
		if ev.Tier == store.TierDisinformation {
			return Result{}, fmt.Errorf("document %s: %w", ev.DocumentID, ErrTrustViolation)
		}
		w, ok := s.cfg.Weights[ev.Tier]
		if !ok {
			return Result{}, fmt.Errorf("document %s: no weight for tier %q", ev.DocumentID, ev.Tier)
		}
		if ev.Tier != store.TierUnverified {
			onlyUnverified = false
		}
		key := s.cfg.SourceKey(ev.Source)
		groups[key] = math.Max(groups[key], w)
	}

	var sum float64
	for _, w := range groups {
		sum += w
	}
	res := Result{
		Confidence:  sum / (s.cfg.K + sum),
		Independent: len(groups),
		Total:       len(evidence),
	}
	if len(evidence) > 0 && onlyUnverified && len(groups) < 2 {
		res.Underflow = true
		if res.Confidence > 0.5 {
			res.Confidence = 0.5
		}
	}
	return res, nil
}

// Split partitions evidence into the factual set and the attribution-only
// set. Disinformation documents go to attribution.
func Split(evidence []Evidence) (factual, attribution []Evidence) {
	for _, ev := range evidence {
		if ev.Tier == store.TierDisinformation {
			attribution = append(attribution, ev)
		} else {
			factual = append(factual, ev)
		}
	}
	return factual, attribution
}

// SourceAttribution is one source's role in propagating a narrative.
type SourceAttribution struct {
	Source    string     `json:"source"`
	Tier      store.Tier `json:"tier"`
	Documents []string   `json:"documents"`
	Flagged   bool       `json:"flagged"` // disinformation or AI-generated origin
}

// Attribution builds the narrative view: which sources pushed the claim,
// grouped by independence key. Disinformation is legitimate input here;
// tracking who spreads a narrative is analysis, not endorsement.
func (s *Scorer) Attribution(evidence []Evidence) []SourceAttribution {
	byKey := make(map[string]*SourceAttribution)
	var keys []string
	for _, ev := range evidence {
		key := s.cfg.SourceKey(ev.Source)
		a, ok := byKey[key]
		if !ok {
			a = &SourceAttribution{Source: key, Tier: ev.Tier}
			byKey[key] = a
			keys = append(keys, key)
		}
		a.Documents = append(a.Documents, ev.DocumentID)
		if weightOf(s.cfg.Weights, ev.Tier) < weightOf(s.cfg.Weights, a.Tier) {
			a.Tier = ev.Tier
		}
		if ev.Tier == store.TierDisinformation || ev.Tier == store.TierAIGenerated {
			a.Flagged = true
		}
	}
	sort.Strings(keys)
	out := make([]SourceAttribution, 0, len(keys))
	for _, key := range keys {
		sort.Strings(byKey[key].Documents)
		out = append(out, *byKey[key])
	}
	return out
}

func weightOf(weights map[store.Tier]float64, tier store.Tier) float64 {
	if w, ok := weights[tier]; ok {
		return w
	}
	return 0
}

// secondLevelSuffixes lists common registries where the registrable domain
// has three labels, not two.
var secondLevelSuffixes = map[string]bool{
	"co.uk": true, "ac.uk": true, "gov.uk": true,
	"com.au": true, "net.au": true, "org.au": true,
	"co.jp": true, "com.br": true, "co.in": true,
}

// RegistrableDomain reduces a source URL or host to the domain a registrant
// controls: "https://news.example.co.uk/a" and "blog.example.co.uk" both map
// to "example.co.uk". Sources that do not parse as hosts are kept verbatim,
// so unknown source strings stay distinct rather than collapsing.
func RegistrableDomain(source string) string {
	host := strings.ToLower(strings.TrimSpace(source))
	if u, err := url.Parse(host); err == nil && u.Host != "" {
		host = u.Host
	}
	host = strings.TrimPrefix(host, "www.")
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	labels := strings.Split(host, ".")
	if len(labels) < 3 {
		return host
	}
	tail := strings.Join(labels[len(labels)-2:], ".")
	if secondLevelSuffixes[tail] {
		return strings.Join(labels[len(labels)-3:], ".")
	}
	return tail
}
