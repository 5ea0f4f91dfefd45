package canon

import (
	"context"
	"errors"
	"testing"

	"lattice/internal/store"
)

func TestHash_WhitespaceInsensitive(t *testing.T) {
	a := Hash("https://Example.com/page ", "Acme  Corp announced\n\na merger")
	b := Hash("https://example.com/page", "Acme Corp announced a merger")
	if a != b {
		t.Errorf("hashes differ for whitespace-only variants: %s vs %s", a, b)
	}
	c := Hash("https://example.com/other", "Acme Corp announced a merger")
	if a == c {
		t.Error("different URLs must hash differently")
	}
}

func TestHash_BoundaryUnambiguous(t *testing.T) {
	// url="ab", body="c" must not collide with url="a", body="bc".
	if Hash("ab", "c") == Hash("a", "bc") {
		t.Error("url/body boundary is ambiguous")
	}
}

func TestIngest_Idempotent(t *testing.T) {
	gw := store.NewMemStore()
	ctx := context.Background()
	art := Artifact{
		URL:       "https://News.example/item",
		Body:      "Acme Corp announced   a merger",
		ReportID:  "20250812_1430_acme",
		TrustTier: store.TierTrusted,
	}
	doc1, created, err := Ingest(ctx, gw, art)
	if err != nil || !created {
		t.Fatalf("first ingest: created=%v err=%v", created, err)
	}

	// Identical content, different whitespace, second report.
	art2 := art
	art2.Body = "Acme Corp announced a merger"
	art2.ReportID = "20250901_0900_beta"
	doc2, created, err := Ingest(ctx, gw, art2)
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if created {
		t.Error("second ingest must be a duplicate no-op")
	}
	if doc2.ID != doc1.ID {
		t.Errorf("IDs differ: %s vs %s", doc1.ID, doc2.ID)
	}
	if len(doc2.ReportIDs) != 2 {
		t.Errorf("expected both reports cross-referenced, got %v", doc2.ReportIDs)
	}

	rec, err := gw.GetTrustRecord(ctx, doc1.ID)
	if err != nil || rec == nil || rec.Tier != store.TierTrusted {
		t.Fatalf("trust record: %+v err=%v", rec, err)
	}
}

func TestIngest_ParseError(t *testing.T) {
	gw := store.NewMemStore()
	_, _, err := Ingest(context.Background(), gw, Artifact{
		URL:  "https://x.example",
		Body: string([]byte{0xff, 0xfe, 0x80}),
	})
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	docs, _ := gw.ListDocumentsByReport(context.Background(), "")
	if len(docs) != 0 {
		t.Error("quarantined artifact must not be persisted")
	}
}

func TestIngest_DefaultsTierToUnverified(t *testing.T) {
	gw := store.NewMemStore()
	doc, _, err := Ingest(context.Background(), gw, Artifact{URL: "https://x.example", Body: "b"})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if doc.TrustTier != store.TierUnverified {
		t.Errorf("tier = %s, want unverified", doc.TrustTier)
	}
}

func TestIngest_RejectsUnknownTier(t *testing.T) {
	gw := store.NewMemStore()
	_, _, err := Ingest(context.Background(), gw, Artifact{
		URL: "https://x.example", Body: "b", TrustTier: "gossip",
	})
	if err == nil {
		t.Fatal("expected error for unknown tier")
	}
}
