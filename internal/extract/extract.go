// Package extract defines the extractor capability consumed by the fusion
// engine. Extraction quality is an external concern: the engine treats any
// Extractor as an untrusted oracle and routes its output through trust
// scoring before believing it.
package extract

import (
	"context"
	"time"

	"lattice/internal/store"
)

// Mention is one candidate entity mention found in a document.
type Mention struct {
	SurfaceText    string  `json:"surface_text"`
	Type           string  `json:"type"` // person | organization | location | phone | email | url | other
	SpanStart      int     `json:"span_start"`
	SpanEnd        int     `json:"span_end"`
	SpanConfidence float64 `json:"span_confidence"`
	// Hint is the extractor's identity judgment: mentions with the same
	// non-empty hint refer to the same real-world entity even when their
	// surface forms differ ("J. Doe" vs "John Doe"). Empty means no judgment.
	Hint string `json:"hint,omitempty"`
}

// DatedClaim is one candidate dated claim found in a document.
type DatedClaim struct {
	Key         string    `json:"key"` // normalized claim signature
	EntityKey   string    `json:"entity_key"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
	Confidence  float64   `json:"confidence"`
}

// Extractor produces candidate mentions and dated claims for a document.
type Extractor interface {
	Mentions(ctx context.Context, doc *store.Document) ([]Mention, error)
	Claims(ctx context.Context, doc *store.Document) ([]DatedClaim, error)
}
