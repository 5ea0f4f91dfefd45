// Package timeline merges dated events from all sources into one ordered,
// contradiction-aware timeline with burst and gap annotations.
package timeline

import (
	"fmt"
	"sort"
	"time"

	"lattice/internal/score"
	"lattice/internal/store"
)

// Event is one dated claim entering fusion. Two events carry the same Key
// only when the extractor judged them to describe the same occurrence;
// fusion never merges by timestamp alone.
type Event struct {
	Key         string
	EntityKey   string
	Description string
	At          time.Time
	Tier        store.Tier
	Documents   []string
	Sources     []string // independent source keys, for contradiction tie-break
	ReportID    string
}

// Statuses of a fused event.
const (
	StatusConfirmed    = "confirmed"
	StatusContradicted = "contradicted"
)

// FusedEvent is one event after fusion. When a key is contradicted all its
// events are retained: the best-supported one is Primary, the others are
// annotated alternatives. Conflicting evidence is never discarded.
type FusedEvent struct {
	Event
	Status  string
	Primary bool
}

// Cluster is a burst period: consecutive events closer together than the
// cluster window.
type Cluster struct {
	Start  time.Time
	End    time.Time
	Events []int // indices into Timeline.Events
}

// Gap flags silence longer than the gap threshold between consecutive
// confirmed events for one entity/topic.
type Gap struct {
	EntityKey string
	Start     time.Time
	End       time.Time
	Duration  time.Duration
}

// Override records an explicit analyst resolution of a contradicted key.
type Override struct {
	Key        string
	Analyst    string
	Note       string
	ResolvedAt time.Time
}

// Config holds the fusion tunables.
type Config struct {
	Tolerance     time.Duration // timestamps differing by more than this contradict
	ClusterWindow time.Duration
	GapThreshold  time.Duration
}

// DefaultConfig returns the standard fusion windows.
func DefaultConfig() Config {
	return Config{
		Tolerance:     24 * time.Hour,
		ClusterWindow: 48 * time.Hour,
		GapThreshold:  30 * 24 * time.Hour,
	}
}

// Timeline is the fused, ordered output.
type Timeline struct {
	Events    []FusedEvent
	Clusters  []Cluster
	Gaps      []Gap
	Overrides []Override

	cfg Config
}

// Fuse merges events from all documents into one ordered timeline.
//
// Per description key the state machine is: unseen → confirmed on the first
// event; confirmed → contradicted when a later event with the same key lands
// outside the tolerance window. Contradicted is terminal until an analyst
// resolves it. Events with the same key inside the tolerance corroborate:
// their document and source sets merge into the existing entry.
func Fuse(events []Event, cfg Config) *Timeline {
	def := DefaultConfig()
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = def.Tolerance
	}
	if cfg.ClusterWindow <= 0 {
		cfg.ClusterWindow = def.ClusterWindow
	}
	if cfg.GapThreshold <= 0 {
		cfg.GapThreshold = def.GapThreshold
	}

	byKey := make(map[string][]Event)
	var keys []string
	for _, ev := range events {
		if _, ok := byKey[ev.Key]; !ok {
			keys = append(keys, ev.Key)
		}
		byKey[ev.Key] = append(byKey[ev.Key], ev)
	}
	sort.Strings(keys)

	tl := &Timeline{cfg: cfg}
	for _, key := range keys {
		tl.Events = append(tl.Events, fuseKey(byKey[key], cfg.Tolerance)...)
	}
	sort.SliceStable(tl.Events, func(i, j int) bool {
		if !tl.Events[i].At.Equal(tl.Events[j].At) {
			return tl.Events[i].At.Before(tl.Events[j].At)
		}
		return tl.Events[i].Key < tl.Events[j].Key
	})

	tl.Clusters = findClusters(tl.Events, cfg.ClusterWindow)
	tl.Gaps = findGaps(tl.Events, cfg.GapThreshold)
	return tl
}

// fuseKey runs the state machine for one description key.
func fuseKey(events []Event, tolerance time.Duration) []FusedEvent {
	sort.SliceStable(events, func(i, j int) bool { return events[i].At.Before(events[j].At) })

	// Bucket by timestamp compatibility with the first event of each
	// variant: events inside tolerance corroborate, outside contradict.
	var variants []FusedEvent
	for _, ev := range events {
		merged := false
		for i := range variants {
			if absDuration(ev.At.Sub(variants[i].At)) <= tolerance {
				variants[i].Documents = unionStrings(variants[i].Documents, ev.Documents)
				variants[i].Sources = unionStrings(variants[i].Sources, ev.Sources)
				merged = true
				break
			}
		}
		if !merged {
			variants = append(variants, FusedEvent{Event: ev, Status: StatusConfirmed})
		}
	}

	if len(variants) == 1 {
		variants[0].Primary = true
		return variants
	}

	// Contradiction: all variants retained, all marked contradicted; the
	// best-supported variant is primary (higher tier, then more
	// independent corroborating sources).
	best := 0
	for i := 1; i < len(variants); i++ {
		if betterSupported(variants[i], variants[best]) {
			best = i
		}
	}
	for i := range variants {
		variants[i].Status = StatusContradicted
		variants[i].Primary = i == best
	}
	return variants
}

func betterSupported(a, b FusedEvent) bool {
	wa, wb := score.DefaultWeights()[a.Tier], score.DefaultWeights()[b.Tier]
	if wa != wb {
		return wa > wb
	}
	return len(a.Sources) > len(b.Sources)
}

// findClusters groups consecutive events whose timestamps fall within the
// window. Only bursts of two or more are surfaced.
func findClusters(events []FusedEvent, window time.Duration) []Cluster {
	var out []Cluster
	var cur []int
	for i := range events {
		if len(cur) > 0 && events[i].At.Sub(events[cur[len(cur)-1]].At) > window {
			if len(cur) > 1 {
				out = append(out, newCluster(events, cur))
			}
			cur = nil
		}
		cur = append(cur, i)
	}
	if len(cur) > 1 {
		out = append(out, newCluster(events, cur))
	}
	return out
}

func newCluster(events []FusedEvent, idx []int) Cluster {
	return Cluster{
		Start:  events[idx[0]].At,
		End:    events[idx[len(idx)-1]].At,
		Events: append([]int(nil), idx...),
	}
}

// findGaps flags silence beyond the threshold between consecutive confirmed
// events of the same entity/topic. Silence is surfaced, never dropped.
func findGaps(events []FusedEvent, threshold time.Duration) []Gap {
	byEntity := make(map[string][]time.Time)
	var entities []string
	for _, ev := range events {
		if ev.Status != StatusConfirmed || ev.EntityKey == "" {
			continue
		}
		if _, ok := byEntity[ev.EntityKey]; !ok {
			entities = append(entities, ev.EntityKey)
		}
		byEntity[ev.EntityKey] = append(byEntity[ev.EntityKey], ev.At)
	}
	sort.Strings(entities)

	var out []Gap
	for _, ent := range entities {
		times := byEntity[ent]
		sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
		for i := 1; i < len(times); i++ {
			if d := times[i].Sub(times[i-1]); d > threshold {
				out = append(out, Gap{EntityKey: ent, Start: times[i-1], End: times[i], Duration: d})
			}
		}
	}
	return out
}

// Contradicted returns the keys currently in the contradicted state.
func (t *Timeline) Contradicted() []string {
	seen := make(map[string]bool)
	var out []string
	for _, ev := range t.Events {
		if ev.Status == StatusContradicted && !seen[ev.Key] {
			seen[ev.Key] = true
			out = append(out, ev.Key)
		}
	}
	sort.Strings(out)
	return out
}

// ResolveContradiction is the explicit analyst override for a contradicted
// key: the variant at the chosen timestamp becomes the confirmed primary,
// the others stay as annotated alternatives. The override is recorded,
// never inferred.
func (t *Timeline) ResolveContradiction(key string, chosen time.Time, analyst, note string) error {
	if analyst == "" {
		return fmt.Errorf("resolving %q requires an analyst identity", key)
	}
	found := false
	for i := range t.Events {
		if t.Events[i].Key != key {
			continue
		}
		if t.Events[i].Status != StatusContradicted {
			return fmt.Errorf("key %q is not contradicted", key)
		}
		if t.Events[i].At.Equal(chosen) {
			t.Events[i].Status = StatusConfirmed
			t.Events[i].Primary = true
			found = true
		} else {
			t.Events[i].Primary = false
		}
	}
	if !found {
		return fmt.Errorf("no variant of %q at %s", key, chosen.Format(time.RFC3339))
	}
	t.Overrides = append(t.Overrides, Override{
		Key: key, Analyst: analyst, Note: note, ResolvedAt: time.Now().UTC(),
	})
	return nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, v := range append(append([]string(nil), a...), b...) {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}
