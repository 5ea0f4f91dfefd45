package timeline

import (
	"testing"
	"time"

	"lattice/internal/store"
)

func at(day int, hour int) time.Time {
	return time.Date(2025, 1, day, hour, 0, 0, 0, time.UTC)
}

func TestFuse_CorroborationMergesWithinTolerance(t *testing.T) {
	events := []Event{
		{Key: "meeting-vienna", At: at(10, 9), Tier: store.TierTrusted,
			Documents: []string{"d1"}, Sources: []string{"alpha.example"}},
		{Key: "meeting-vienna", At: at(10, 21), Tier: store.TierUnverified,
			Documents: []string{"d2"}, Sources: []string{"beta.example"}},
	}
	tl := Fuse(events, Config{})
	if len(tl.Events) != 1 {
		t.Fatalf("events within tolerance must merge, got %d", len(tl.Events))
	}
	ev := tl.Events[0]
	if ev.Status != StatusConfirmed || !ev.Primary {
		t.Errorf("merged event: %+v", ev)
	}
	if len(ev.Documents) != 2 || len(ev.Sources) != 2 {
		t.Errorf("document/source sets not merged: %+v", ev)
	}
}

// A trusted report dates the event Jan 15, an unverified one Jan 20. Both
// versions stay on the timeline, the key goes contradicted, and the trusted
// variant is primary.
func TestFuse_ContradictionKeepsBothVariants(t *testing.T) {
	events := []Event{
		{Key: "server-seizure", At: at(20, 0), Tier: store.TierUnverified,
			Documents: []string{"d2"}, Sources: []string{"forum.example"}},
		{Key: "server-seizure", At: at(15, 0), Tier: store.TierTrusted,
			Documents: []string{"d1"}, Sources: []string{"agency.example"}},
	}
	tl := Fuse(events, Config{})
	if len(tl.Events) != 2 {
		t.Fatalf("contradiction must retain both variants, got %d", len(tl.Events))
	}
	for _, ev := range tl.Events {
		if ev.Status != StatusContradicted {
			t.Errorf("variant at %s: status = %s", ev.At, ev.Status)
		}
		if ev.Primary != (ev.Tier == store.TierTrusted) {
			t.Errorf("primary must follow the higher tier: %+v", ev)
		}
	}
	if got := tl.Contradicted(); len(got) != 1 || got[0] != "server-seizure" {
		t.Errorf("Contradicted() = %v", got)
	}
}

func TestFuse_ContradictionTieBreakBySources(t *testing.T) {
	events := []Event{
		{Key: "k", At: at(1, 0), Tier: store.TierUnverified,
			Sources: []string{"a.example"}},
		{Key: "k", At: at(10, 0), Tier: store.TierUnverified,
			Sources: []string{"b.example", "c.example"}},
	}
	tl := Fuse(events, Config{})
	for _, ev := range tl.Events {
		if ev.Primary != (len(ev.Sources) == 2) {
			t.Errorf("equal tiers: more independent sources must win, %+v", ev)
		}
	}
}

func TestFuse_BurstCluster(t *testing.T) {
	var events []Event
	for i := 0; i < 5; i++ {
		events = append(events, Event{
			Key: "k" + string(rune('a'+i)),
			At:  at(10, i*10), // five events spread over two days
		})
	}
	events = append(events, Event{Key: "far", At: at(25, 0)})

	tl := Fuse(events, Config{})
	if len(tl.Clusters) != 1 {
		t.Fatalf("clusters = %d, want 1", len(tl.Clusters))
	}
	if got := len(tl.Clusters[0].Events); got != 5 {
		t.Errorf("cluster size = %d, want 5", got)
	}
}

func TestFuse_GapPerEntity(t *testing.T) {
	events := []Event{
		{Key: "a", EntityKey: "person:john doe", At: at(1, 0)},
		{Key: "b", EntityKey: "person:john doe", At: time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)}, // 70 days later
		{Key: "c", EntityKey: "person:jane roe", At: at(2, 0)},
		{Key: "d", EntityKey: "person:jane roe", At: at(20, 0)},
	}
	tl := Fuse(events, Config{})
	if len(tl.Gaps) != 1 {
		t.Fatalf("gaps = %v, want exactly one", tl.Gaps)
	}
	g := tl.Gaps[0]
	if g.EntityKey != "person:john doe" {
		t.Errorf("gap entity = %s", g.EntityKey)
	}
	if g.Duration != 70*24*time.Hour {
		t.Errorf("gap duration = %s", g.Duration)
	}
}

func TestResolveContradiction(t *testing.T) {
	events := []Event{
		{Key: "k", At: at(15, 0), Tier: store.TierTrusted},
		{Key: "k", At: at(20, 0), Tier: store.TierUnverified},
	}
	tl := Fuse(events, Config{})

	if err := tl.ResolveContradiction("k", at(20, 0), "", "analyst chose later date"); err == nil {
		t.Error("resolution without an analyst identity must fail")
	}
	if err := tl.ResolveContradiction("k", at(17, 0), "analyst7", ""); err == nil {
		t.Error("resolution at a timestamp with no variant must fail")
	}

	if err := tl.ResolveContradiction("k", at(20, 0), "analyst7", "field confirmation"); err != nil {
		t.Fatalf("ResolveContradiction: %v", err)
	}
	for _, ev := range tl.Events {
		primary := ev.At.Equal(at(20, 0))
		if ev.Primary != primary {
			t.Errorf("after override: %+v", ev)
		}
		if primary && ev.Status != StatusConfirmed {
			t.Errorf("chosen variant not confirmed: %+v", ev)
		}
	}
	if len(tl.Overrides) != 1 || tl.Overrides[0].Analyst != "analyst7" {
		t.Errorf("override record: %+v", tl.Overrides)
	}

	if err := tl.ResolveContradiction("missing", at(1, 0), "analyst7", ""); err == nil {
		t.Error("unknown key must fail")
	}
}

func TestFuse_OrderedOutput(t *testing.T) {
	events := []Event{
		{Key: "late", At: at(20, 0)},
		{Key: "early", At: at(2, 0)},
		{Key: "mid", At: at(10, 0)},
	}
	tl := Fuse(events, Config{})
	for i := 1; i < len(tl.Events); i++ {
		if tl.Events[i].At.Before(tl.Events[i-1].At) {
			t.Fatalf("timeline not ordered: %v before %v", tl.Events[i].At, tl.Events[i-1].At)
		}
	}
}
