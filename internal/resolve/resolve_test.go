package resolve

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"lattice/internal/extract"
	"lattice/internal/store"
)

func TestNormalize(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Dr. Jane Roe", "jane roe"},
		{"  John   DOE ", "john doe"},
		{"Prof Jane Roe", "jane roe"},
		{"Acme Corp.", "acme corp"},
		{"Mrs. Smith", "smith"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func doc(id, collected string) *store.Document {
	return &store.Document{ID: id, CollectedAt: collected, TrustTier: store.TierUnverified}
}

// Three documents, three surface forms, one identity: the alias set grows,
// the mention count tracks distinct (document, span) pairs.
func TestResolve_AliasAccumulation(t *testing.T) {
	gw := store.NewMemStore()
	r := New(gw)
	ctx := context.Background()

	steps := []struct {
		docID   string
		mention extract.Mention
	}{
		{"d1", extract.Mention{SurfaceText: "John Doe", Type: "person"}},
		{"d2", extract.Mention{SurfaceText: "J. Doe", Type: "person", Hint: "John Doe"}},
		{"d3", extract.Mention{SurfaceText: "Johnny", Type: "person", Hint: "John Doe"}},
	}
	for i, st := range steps {
		collected := fmt.Sprintf("2025-01-%02dT00:00:00Z", i+1)
		entities, warnings, err := r.Resolve(ctx, doc(st.docID, collected), []extract.Mention{st.mention})
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if len(warnings) != 0 {
			t.Fatalf("step %d: unexpected warnings %v", i, warnings)
		}
		if len(entities) != 1 {
			t.Fatalf("step %d: got %d entities", i, len(entities))
		}
	}

	e, err := gw.GetEntity(ctx, "person:john doe")
	if err != nil || e == nil {
		t.Fatalf("GetEntity: %+v err=%v", e, err)
	}
	if e.MentionCount != 3 {
		t.Errorf("mention_count = %d, want 3", e.MentionCount)
	}
	if diff := cmp.Diff([]string{"J. Doe", "John Doe", "Johnny"}, e.Aliases); diff != "" {
		t.Errorf("aliases (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"d1", "d2", "d3"}, e.Documents); diff != "" {
		t.Errorf("documents (-want +got):\n%s", diff)
	}
	if e.FirstSeen != "2025-01-01T00:00:00Z" {
		t.Errorf("first_seen = %s", e.FirstSeen)
	}

	// A second mention of an existing alias in a new document still counts.
	if _, _, err := r.Resolve(ctx, doc("d4", "2025-01-04T00:00:00Z"),
		[]extract.Mention{{SurfaceText: "Johnny", Type: "person", Hint: "John Doe"}}); err != nil {
		t.Fatalf("fourth resolve: %v", err)
	}
	e, _ = gw.GetEntity(ctx, "person:john doe")
	if e.MentionCount != 4 || len(e.Aliases) != 3 {
		t.Errorf("after d4: count=%d aliases=%v", e.MentionCount, e.Aliases)
	}
}

func TestResolve_CreatesNewEntity(t *testing.T) {
	gw := store.NewMemStore()
	r := New(gw)
	entities, _, err := r.Resolve(context.Background(), doc("d1", "2025-01-01T00:00:00Z"),
		[]extract.Mention{{SurfaceText: "Dr. Jane Roe", Type: "person"}})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(entities) != 1 || entities[0].ID != "person:jane roe" {
		t.Fatalf("entities: %+v", entities)
	}
	if entities[0].CanonicalName != "jane roe" {
		t.Errorf("canonical name = %q", entities[0].CanonicalName)
	}
	// Raw surface form kept as alias.
	if diff := cmp.Diff([]string{"Dr. Jane Roe"}, entities[0].Aliases); diff != "" {
		t.Errorf("aliases (-want +got):\n%s", diff)
	}
}

// A nickname shared by two established identities must not auto-merge them:
// the mention attaches to the higher-mention-count entity and a warning is
// produced for analyst review.
func TestResolve_AmbiguousNickname(t *testing.T) {
	gw := store.NewMemStore()
	ctx := context.Background()
	seed := []*store.Entity{
		{ID: "person:john doe", Type: "person", CanonicalName: "john doe",
			Aliases: []string{"John Doe", "Johnny"}, MentionCount: 5, Documents: []string{"d1"}},
		{ID: "person:john smith", Type: "person", CanonicalName: "john smith",
			Aliases: []string{"John Smith", "Johnny"}, MentionCount: 2, Documents: []string{"d2"}},
	}
	for _, e := range seed {
		if _, err := gw.MergeEntity(ctx, e); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	r := New(gw)
	entities, warnings, err := r.Resolve(ctx, doc("d3", "2025-01-03T00:00:00Z"),
		[]extract.Mention{{SurfaceText: "Johnny", Type: "person"}})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning, got %v", warnings)
	}
	w := warnings[0]
	if w.ChosenID != "person:john doe" {
		t.Errorf("chosen = %s, want the higher mention count entity", w.ChosenID)
	}
	if len(w.CandidateIDs) != 2 {
		t.Errorf("candidates = %v", w.CandidateIDs)
	}
	if len(entities) != 1 || entities[0].MentionCount != 6 {
		t.Errorf("attach did not land: %+v", entities)
	}
	// The loser is untouched.
	smith, _ := gw.GetEntity(ctx, "person:john smith")
	if smith.MentionCount != 2 {
		t.Errorf("distinct identity was modified: %+v", smith)
	}
}

func TestResolve_TypeScopesIdentity(t *testing.T) {
	gw := store.NewMemStore()
	r := New(gw)
	ctx := context.Background()
	mentions := []extract.Mention{
		{SurfaceText: "Mercury", Type: "person"},
		{SurfaceText: "Mercury", Type: "organization"},
	}
	entities, _, err := r.Resolve(ctx, doc("d1", "2025-01-01T00:00:00Z"), mentions)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(entities) != 2 {
		t.Fatalf("same surface across types must stay distinct, got %d", len(entities))
	}
}
