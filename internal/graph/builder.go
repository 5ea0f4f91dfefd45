// Package graph derives weighted edges between entities from co-occurrence
// and explicit relations, and computes structural metrics on demand.
package graph

import (
	"context"
	"fmt"

	"lattice/internal/store"
)

// CoOccurrence is the type tag for undirected co-occurrence edges.
const CoOccurrence = "co_occurrence"

// CoEdgeID builds the canonical ID for an undirected edge. Ordering by
// entity ID keeps (a,b) and (b,a) on the same row.
func CoEdgeID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return "co:" + a + "|" + b
}

// AssertionID keys a typed directed relation by (source, target, type).
func AssertionID(source, target, relType string) string {
	return "rel:" + source + "|" + relType + "|" + target
}

// Builder updates the relationship graph through the gateway.
type Builder struct {
	gw store.Store
}

// NewBuilder returns a Builder backed by gw.
func NewBuilder(gw store.Store) *Builder {
	return &Builder{gw: gw}
}

// Update increments the co-occurrence edge for every unordered pair of
// entities resolved within one document. Edge weight is the co-occurrence
// count; first_seen is the earliest contributing document timestamp.
func (b *Builder) Update(ctx context.Context, doc *store.Document, entities []*store.Entity) ([]*store.Relationship, error) {
	if doc == nil {
		return nil, fmt.Errorf("update graph: document is nil")
	}
	var out []*store.Relationship
	for i := 0; i < len(entities); i++ {
		for j := i + 1; j < len(entities); j++ {
			a, c := entities[i].ID, entities[j].ID
			if a == c {
				continue
			}
			if c < a {
				a, c = c, a
			}
			delta := &store.Relationship{
				ID:        CoEdgeID(a, c),
				SourceID:  a,
				TargetID:  c,
				Type:      CoOccurrence,
				Weight:    1,
				FirstSeen: doc.CollectedAt,
				Documents: []string{doc.ID},
			}
			merged, err := b.gw.MergeRelationship(ctx, delta)
			if err != nil {
				return nil, fmt.Errorf("merge co-occurrence edge %s: %w", delta.ID, err)
			}
			out = append(out, merged)
		}
	}
	return out, nil
}

// AddAssertion records an extractor-asserted typed relation (for example
// "employed_by") as a directed edge. Weight grows with each independent
// assertion; directed edges never fold into the co-occurrence edge set.
func (b *Builder) AddAssertion(ctx context.Context, doc *store.Document, source, target, relType string) (*store.Relationship, error) {
	if relType == "" || relType == CoOccurrence {
		return nil, fmt.Errorf("assertion needs a concrete relation type")
	}
	delta := &store.Relationship{
		ID:        AssertionID(source, target, relType),
		SourceID:  source,
		TargetID:  target,
		Type:      relType,
		Directed:  true,
		Weight:    1,
		FirstSeen: doc.CollectedAt,
		Documents: []string{doc.ID},
	}
	merged, err := b.gw.MergeRelationship(ctx, delta)
	if err != nil {
		return nil, fmt.Errorf("merge assertion %s: %w", delta.ID, err)
	}
	return merged, nil
}
