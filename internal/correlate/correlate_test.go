package correlate

import (
	"context"
	"fmt"
	"testing"

	"lattice/internal/score"
	"lattice/internal/store"
)

// seedEntityAcross wires one entity into n reports, one document per report.
// Every document carries the same contact email, so the deep dive finds a
// shared technical identifier.
func seedEntityAcross(t *testing.T, gw store.Store, entityID string, n int) {
	t.Helper()
	ctx := context.Background()
	var docIDs []string
	for i := 0; i < n; i++ {
		rep := fmt.Sprintf("2025011%d_0900_probe_%d", i, i)
		doc := &store.Document{
			ID:          fmt.Sprintf("doc-%s-%d", entityID, i),
			SourceURL:   fmt.Sprintf("https://site%d.example/a", i),
			TrustTier:   store.TierTrusted,
			Body:        "contact broker at fixer@relay.example for details",
			CollectedAt: fmt.Sprintf("2025-01-1%dT09:00:00Z", i),
			ReportIDs:   []string{rep},
		}
		if _, err := gw.PutDocument(ctx, doc); err != nil {
			t.Fatalf("seed document: %v", err)
		}
		docIDs = append(docIDs, doc.ID)
	}
	if _, err := gw.MergeEntity(ctx, &store.Entity{
		ID: entityID, Type: "person", CanonicalName: entityID,
		MentionCount: n, Documents: docIDs,
	}); err != nil {
		t.Fatalf("seed entity: %v", err)
	}
}

func reportIDs(n int) []string {
	var out []string
	for i := 0; i < n; i++ {
		out = append(out, fmt.Sprintf("2025011%d_0900_probe_%d", i, i))
	}
	return out
}

func TestCorrelate_HotDotAboveThreshold(t *testing.T) {
	gw := store.NewMemStore()
	c := New(gw, score.New(score.Config{}), Config{})
	seedEntityAcross(t, gw, "person:recurring broker", 4)

	alerts, err := c.Correlate(context.Background(), reportIDs(4))
	if err != nil {
		t.Fatalf("Correlate: %v", err)
	}
	var reuse *store.Alert
	for _, a := range alerts {
		if a.Kind == KindEntityReuse {
			reuse = a
		}
	}
	if reuse == nil {
		t.Fatal("entity in 4 reports must raise an entity_reuse alert")
	}
	if len(reuse.ReportIDs) != 4 || reuse.EntityIDs[0] != "person:recurring broker" {
		t.Errorf("alert scope: %+v", reuse)
	}
	// The shared email identifier from the deep dive is in the evidence.
	found := false
	for _, ev := range reuse.Evidence {
		if ev == "email:fixer@relay.example" {
			found = true
		}
	}
	if !found {
		t.Errorf("shared identifier missing from evidence: %v", reuse.Evidence)
	}
	if reuse.Confidence <= 0.5 || reuse.Confidence >= 1 {
		t.Errorf("confidence = %f, want corroborated range", reuse.Confidence)
	}

	persisted, _ := gw.ListAlerts(context.Background())
	if len(persisted) != len(alerts) {
		t.Errorf("alerts not persisted: %d vs %d", len(persisted), len(alerts))
	}
}

func TestCorrelate_BelowThresholdIsQuiet(t *testing.T) {
	gw := store.NewMemStore()
	c := New(gw, nil, Config{})
	seedEntityAcross(t, gw, "person:bit player", 2)

	alerts, err := c.Correlate(context.Background(), reportIDs(2))
	if err != nil {
		t.Fatalf("Correlate: %v", err)
	}
	for _, a := range alerts {
		if a.Kind == KindEntityReuse {
			t.Errorf("entity in only 2 reports must not alert: %+v", a)
		}
	}
}

func TestCorrelate_RepeatedReportArgsCountOnce(t *testing.T) {
	gw := store.NewMemStore()
	c := New(gw, nil, Config{})
	seedEntityAcross(t, gw, "person:bit player", 2)

	// Each report named three times: still only two distinct scopes.
	reps := append(reportIDs(2), reportIDs(2)...)
	reps = append(reps, reportIDs(2)...)
	alerts, err := c.Correlate(context.Background(), reps)
	if err != nil {
		t.Fatalf("Correlate: %v", err)
	}
	for _, a := range alerts {
		if a.Kind == KindEntityReuse {
			t.Errorf("repeated report args inflated the hot-dot count: %+v", a)
		}
	}
}

func TestCorrelate_SingleReportNoOp(t *testing.T) {
	gw := store.NewMemStore()
	c := New(gw, nil, Config{})
	seedEntityAcross(t, gw, "person:solo", 1)
	alerts, err := c.Correlate(context.Background(), nil)
	if err != nil || alerts != nil {
		t.Errorf("single report: alerts=%v err=%v", alerts, err)
	}
}

func TestCorrelate_TemporalSync(t *testing.T) {
	gw := store.NewMemStore()
	ctx := context.Background()
	c := New(gw, nil, Config{})

	events := []*store.Event{
		{ID: "e1", Key: "posting-wave-a", Timestamp: "2025-02-01T08:00:00Z", ReportID: "20250201_0800_alpha"},
		{ID: "e2", Key: "posting-wave-b", Timestamp: "2025-02-02T10:00:00Z", ReportID: "20250202_1000_beta"},
		// Far outside the window, same second report.
		{ID: "e3", Key: "stale", Timestamp: "2025-03-01T00:00:00Z", ReportID: "20250202_1000_beta"},
	}
	for _, ev := range events {
		if err := gw.PutEvent(ctx, ev); err != nil {
			t.Fatalf("PutEvent: %v", err)
		}
	}

	alerts, err := c.Correlate(ctx, []string{"20250201_0800_alpha", "20250202_1000_beta"})
	if err != nil {
		t.Fatalf("Correlate: %v", err)
	}
	var sync []*store.Alert
	for _, a := range alerts {
		if a.Kind == KindTemporalSync {
			sync = append(sync, a)
		}
	}
	if len(sync) != 1 {
		t.Fatalf("temporal_sync alerts = %d, want 1", len(sync))
	}
	if len(sync[0].Evidence) != 2 || len(sync[0].ReportIDs) != 2 {
		t.Errorf("sync alert: %+v", sync[0])
	}
}

func TestCorrelate_RerunSupersedes(t *testing.T) {
	gw := store.NewMemStore()
	c := New(gw, nil, Config{})
	seedEntityAcross(t, gw, "person:recurring broker", 4)
	ctx := context.Background()

	first, err := c.Correlate(ctx, reportIDs(4))
	if err != nil || len(first) == 0 {
		t.Fatalf("first run: %v %v", first, err)
	}
	second, err := c.Correlate(ctx, reportIDs(4))
	if err != nil || len(second) == 0 {
		t.Fatalf("second run: %v %v", second, err)
	}
	if second[0].ID == first[0].ID {
		t.Error("re-run must mint a fresh alert ID")
	}
	if second[0].Supersedes != first[0].ID {
		t.Errorf("supersedes = %q, want %q", second[0].Supersedes, first[0].ID)
	}
}
