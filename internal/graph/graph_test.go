package graph

import (
	"context"
	"math"
	"testing"

	"lattice/internal/store"
)

func ent(id string) *store.Entity {
	return &store.Entity{ID: id, Type: "person", CanonicalName: id}
}

func TestUpdate_CoOccurrenceSymmetric(t *testing.T) {
	gw := store.NewMemStore()
	b := NewBuilder(gw)
	ctx := context.Background()

	doc1 := &store.Document{ID: "d1", CollectedAt: "2025-03-01T00:00:00Z"}
	edges, err := b.Update(ctx, doc1, []*store.Entity{ent("person:b"), ent("person:a"), ent("person:c")})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(edges) != 3 {
		t.Fatalf("expected 3 pairwise edges, got %d", len(edges))
	}

	// Reverse listing order in a second document: same edge rows, weight 2.
	doc2 := &store.Document{ID: "d2", CollectedAt: "2025-02-01T00:00:00Z"}
	if _, err := b.Update(ctx, doc2, []*store.Entity{ent("person:c"), ent("person:a"), ent("person:b")}); err != nil {
		t.Fatalf("second update: %v", err)
	}
	all, err := gw.ListRelationships(ctx)
	if err != nil || len(all) != 3 {
		t.Fatalf("ListRelationships: got %d err=%v", len(all), err)
	}
	for _, r := range all {
		if r.Weight != 2 {
			t.Errorf("edge %s weight = %d, want 2", r.ID, r.Weight)
		}
		if r.SourceID > r.TargetID {
			t.Errorf("edge %s not canonically ordered", r.ID)
		}
		if r.FirstSeen != "2025-02-01T00:00:00Z" {
			t.Errorf("edge %s first_seen = %s, want earliest doc", r.ID, r.FirstSeen)
		}
	}
}

func TestAddAssertion_DirectedSeparate(t *testing.T) {
	gw := store.NewMemStore()
	b := NewBuilder(gw)
	ctx := context.Background()
	doc := &store.Document{ID: "d1", CollectedAt: "2025-03-01T00:00:00Z"}

	if _, err := b.Update(ctx, doc, []*store.Entity{ent("person:a"), ent("org:x")}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	rel, err := b.AddAssertion(ctx, doc, "person:a", "org:x", "employed_by")
	if err != nil {
		t.Fatalf("AddAssertion: %v", err)
	}
	if !rel.Directed || rel.Type != "employed_by" {
		t.Errorf("assertion edge: %+v", rel)
	}
	// Repeated independent assertion bumps weight.
	rel, err = b.AddAssertion(ctx, &store.Document{ID: "d2", CollectedAt: "2025-03-02T00:00:00Z"},
		"person:a", "org:x", "employed_by")
	if err != nil || rel.Weight != 2 {
		t.Fatalf("second assertion: %+v err=%v", rel, err)
	}

	all, _ := gw.ListRelationships(ctx)
	if len(all) != 2 {
		t.Fatalf("typed edge must not fold into co-occurrence edge, got %d rows", len(all))
	}

	if _, err := b.AddAssertion(ctx, doc, "person:a", "org:x", CoOccurrence); err == nil {
		t.Error("co_occurrence as assertion type must be rejected")
	}
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func edge(a, b string) *store.Relationship {
	return &store.Relationship{ID: CoEdgeID(a, b), SourceID: a, TargetID: b, Type: CoOccurrence, Weight: 1}
}

func TestMetrics_PathGraph(t *testing.T) {
	// a - b - c: b bridges every a↔c path.
	s := NewSnapshot([]string{"a", "b", "c"}, []*store.Relationship{edge("a", "b"), edge("b", "c")})
	m := s.Compute()
	byID := map[string]Metrics{}
	for _, x := range m {
		byID[x.Entity] = x
	}
	if byID["b"].Degree != 2 || byID["a"].Degree != 1 {
		t.Errorf("degrees wrong: %+v", byID)
	}
	if !approx(byID["b"].Betweenness, 1) {
		t.Errorf("betweenness(b) = %f, want 1", byID["b"].Betweenness)
	}
	if !approx(byID["a"].Betweenness, 0) {
		t.Errorf("betweenness(a) = %f, want 0", byID["a"].Betweenness)
	}
	if !approx(byID["b"].Closeness, 1) {
		t.Errorf("closeness(b) = %f, want 1", byID["b"].Closeness)
	}
	if !approx(byID["a"].Closeness, 2.0/3.0) {
		t.Errorf("closeness(a) = %f, want 2/3", byID["a"].Closeness)
	}
}

func TestMetrics_TriangleClustering(t *testing.T) {
	s := NewSnapshot([]string{"a", "b", "c"},
		[]*store.Relationship{edge("a", "b"), edge("b", "c"), edge("a", "c")})
	for _, m := range s.Compute() {
		if !approx(m.Clustering, 1) {
			t.Errorf("clustering(%s) = %f, want 1", m.Entity, m.Clustering)
		}
		if !approx(m.Betweenness, 0) {
			t.Errorf("betweenness(%s) = %f, want 0", m.Entity, m.Betweenness)
		}
	}
}

func TestMetrics_DuplicateEdgesDeduplicated(t *testing.T) {
	// The same pair via co-occurrence and a typed assertion is one
	// adjacency, not two.
	rels := []*store.Relationship{
		edge("a", "b"),
		{ID: AssertionID("a", "b", "employed_by"), SourceID: "a", TargetID: "b", Type: "employed_by", Directed: true},
	}
	s := NewSnapshot([]string{"a", "b"}, rels)
	m := s.Compute()
	for _, x := range m {
		if x.Degree != 1 {
			t.Errorf("degree(%s) = %d, want 1", x.Entity, x.Degree)
		}
	}
}

func TestLoad_FromStore(t *testing.T) {
	gw := store.NewMemStore()
	ctx := context.Background()
	for _, id := range []string{"person:a", "person:b"} {
		if _, err := gw.MergeEntity(ctx, ent(id)); err != nil {
			t.Fatalf("MergeEntity: %v", err)
		}
	}
	b := NewBuilder(gw)
	doc := &store.Document{ID: "d1", CollectedAt: "2025-03-01T00:00:00Z"}
	if _, err := b.Update(ctx, doc, []*store.Entity{ent("person:a"), ent("person:b")}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	s, err := Load(ctx, gw)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Size() != 2 {
		t.Errorf("snapshot size = %d, want 2", s.Size())
	}
}
