package store

import (
	"context"
	"errors"
	"sort"
	"strings"
)

// DefaultDBPath is the default relative path for the SQLite DB (per-workspace).
// Resolve against cwd; Open() creates the parent dir (e.g. .lattice).
const DefaultDBPath = ".lattice/lattice.db"

// ErrUnavailable is returned by the retrying wrapper once the retry budget
// for a gateway call is exhausted. Callers mark the unit failed and move on.
var ErrUnavailable = errors.New("store unavailable")

// Tier is the trust classification of a document's source.
type Tier string

const (
	TierTrusted        Tier = "trusted"
	TierUnverified     Tier = "unverified"
	TierDisinformation Tier = "disinformation"
	TierLeaked         Tier = "leaked"
	TierAIGenerated    Tier = "ai_generated"
)

// ValidTier reports whether t is one of the known trust tiers.
func ValidTier(t Tier) bool {
	switch t {
	case TierTrusted, TierUnverified, TierDisinformation, TierLeaked, TierAIGenerated:
		return true
	}
	return false
}

// Document is one deduplicated, normalized artifact. ID is a content hash
// over (normalized URL, normalized body), so document identity is global:
// the same artifact ingested under two investigations is one Document
// cross-referenced by multiple report IDs.
type Document struct {
	ID          string
	SourceURL   string
	SourceType  string
	SourceFile  string
	DataType    string
	TrustTier   Tier
	Title       string
	Body        string
	CollectedAt string
	PublishedAt string
	ReportIDs   []string
	RawPayload  []byte
}

// TrustRecord is the audited trust assignment for one document. Tier is set
// at ingestion and mutable only through OverrideTier.
type TrustRecord struct {
	DocumentID         string
	Tier               Tier
	VerificationStatus string // verified | pending | unverifiable
	OverriddenBy       string
	OverrideNote       string
	UpdatedAt          string
}

// Entity is a canonical resolved identity. Aliases and Documents are sorted
// sets; MentionCount equals the number of distinct (document, span) pairs
// attributed to this entity.
type Entity struct {
	ID            string
	Type          string // person | organization | location | phone | email | url | other
	CanonicalName string
	Aliases       []string
	MentionCount  int
	FirstSeen     string
	Documents     []string
}

// Relationship is a weighted edge between two entities. Undirected
// co-occurrence edges use canonical (min, max) ID ordering; typed
// extractor-asserted relations are directed and keyed by (source, target, type).
type Relationship struct {
	ID        string
	SourceID  string
	TargetID  string
	Type      string // "co_occurrence" for undirected edges
	Directed  bool
	Weight    int
	FirstSeen string
	Documents []string
}

// Event is one fused dated claim. Two events share a Key only when the
// extractor judged them to describe the same occurrence.
type Event struct {
	ID            string
	Key           string
	EntityKey     string // entity/topic scope, used for gap detection
	Description   string
	Timestamp     string
	Confidence    float64
	Status        string // confirmed | contradicted
	Primary       bool
	AlternativeOf string
	Documents     []string
	ReportID      string
}

// Alert is a cross-report correlation finding. Alerts are write-once;
// superseding analysis creates a new alert referencing the old one.
type Alert struct {
	ID         string
	Kind       string // entity_reuse | temporal_sync | narrative_mirroring
	EntityIDs  []string
	ReportIDs  []string
	Evidence   []string
	Confidence float64
	Supersedes string
	CreatedAt  string
}

// Store is the persistence gateway. Get* return (nil, nil) when the record
// does not exist. Every write is atomic: a record is fully written or not
// written. PutDocument is the single compare-and-set used for dedup.
type Store interface {
	// Documents
	// PutDocument inserts doc if no document with doc.ID exists and returns
	// created=true. If one exists it is left unchanged except that doc's
	// report IDs are unioned in, and created=false is returned.
	PutDocument(ctx context.Context, doc *Document) (created bool, err error)
	GetDocument(ctx context.Context, id string) (*Document, error)
	ListDocumentsByReport(ctx context.Context, reportID string) ([]*Document, error)

	// Trust records
	PutTrustRecord(ctx context.Context, rec *TrustRecord) error
	GetTrustRecord(ctx context.Context, documentID string) (*TrustRecord, error)
	// OverrideTier is the audited analyst override; it records who and why.
	OverrideTier(ctx context.Context, documentID string, tier Tier, analyst, note string) error

	// Entities
	// MergeEntity unions aliases and documents, sums mention counts, and
	// keeps the earliest FirstSeen. Creates the entity if absent. The merge
	// is atomic per entity ID.
	MergeEntity(ctx context.Context, delta *Entity) (*Entity, error)
	GetEntity(ctx context.Context, id string) (*Entity, error)
	FindEntitiesByAlias(ctx context.Context, alias string) ([]*Entity, error)
	ListEntities(ctx context.Context) ([]*Entity, error)
	ListEntitiesByReport(ctx context.Context, reportID string) ([]*Entity, error)

	// Relationships
	// MergeRelationship adds weight, unions documents, keeps min FirstSeen.
	MergeRelationship(ctx context.Context, delta *Relationship) (*Relationship, error)
	ListRelationships(ctx context.Context) ([]*Relationship, error)
	ListRelationshipsForEntity(ctx context.Context, entityID string) ([]*Relationship, error)

	// Events
	PutEvent(ctx context.Context, ev *Event) error
	ListEvents(ctx context.Context) ([]*Event, error)
	ListEventsByReport(ctx context.Context, reportID string) ([]*Event, error)

	// Alerts
	PutAlert(ctx context.Context, a *Alert) error
	ListAlerts(ctx context.Context) ([]*Alert, error)

	// Reports
	ListReports(ctx context.Context) ([]string, error)

	Close() error
}

// Namespace derives the per-investigation index namespace from a report ID.
// Report IDs lead with a timestamp ("20250812_1430_acme_probe"); the
// namespace is "osint_" plus the timestamp segments, lowercased.
func Namespace(reportID string) string {
	parts := strings.Split(reportID, "_")
	if len(parts) >= 2 {
		return strings.ToLower("osint_" + parts[0] + "_" + parts[1])
	}
	return strings.ToLower("osint_" + reportID)
}

// mergeSet unions b into a, returning a sorted, deduplicated slice.
func mergeSet(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, v := range a {
		seen[v] = struct{}{}
	}
	for _, v := range b {
		seen[v] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// minTime returns the earlier of two RFC3339 strings; empty strings lose.
func minTime(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	if b < a {
		return b
	}
	return a
}
