// Package correlate finds cross-report patterns: the same entity recurring
// across investigation scopes, shared technical identifiers, and temporally
// synchronized activity.
package correlate

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"lattice/internal/extract"
	"lattice/internal/logging"
	"lattice/internal/score"
	"lattice/internal/store"
)

// Alert kinds.
const (
	KindEntityReuse  = "entity_reuse"
	KindTemporalSync = "temporal_sync"
)

// Config holds the correlation tunables.
type Config struct {
	// MatrixThreshold is the report count an entity must exceed to become
	// a hot dot in the report-by-entity matrix.
	MatrixThreshold int
	// SyncWindow bounds how far apart events may be and still count as
	// synchronized activity.
	SyncWindow time.Duration
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{MatrixThreshold: 3, SyncWindow: 48 * time.Hour}
}

// Correlator runs the fixed three-pass scan plus the temporal sync sweep.
// The pass count never grows with input; correlation output is alerts, which
// are not correlation input, so a run always terminates.
type Correlator struct {
	gw     store.Store
	scorer *score.Scorer
	cfg    Config
	log    *slog.Logger
}

// New returns a Correlator over gw.
func New(gw store.Store, scorer *score.Scorer, cfg Config) *Correlator {
	def := DefaultConfig()
	if cfg.MatrixThreshold <= 0 {
		cfg.MatrixThreshold = def.MatrixThreshold
	}
	if cfg.SyncWindow <= 0 {
		cfg.SyncWindow = def.SyncWindow
	}
	if scorer == nil {
		scorer = score.New(score.Config{})
	}
	return &Correlator{gw: gw, scorer: scorer, cfg: cfg, log: logging.New("correlate")}
}

// Correlate scans the given reports (all known reports when empty) and
// persists the alerts it raises.
//
// Pass 1 audits entity membership per report. Pass 2 marks entities whose
// report count exceeds the matrix threshold as hot dots. Pass 3 deep-dives
// each hot dot: technical identifiers extracted from its documents are
// joined by exact match, and identifiers recurring across reports become
// alert evidence. A final sweep flags bursts of events from different
// reports inside the sync window.
func (c *Correlator) Correlate(ctx context.Context, reports []string) ([]*store.Alert, error) {
	reports = dedup(reports)
	if len(reports) == 0 {
		var err error
		reports, err = c.gw.ListReports(ctx)
		if err != nil {
			return nil, fmt.Errorf("list reports: %w", err)
		}
	}
	if len(reports) < 2 {
		return nil, nil
	}

	entityReports, err := c.auditPass(ctx, reports)
	if err != nil {
		return nil, err
	}

	var hot []string
	for id, reps := range entityReports {
		if len(reps) > c.cfg.MatrixThreshold {
			hot = append(hot, id)
		}
	}
	sort.Strings(hot)
	c.log.Debug("matrix pass done", "entities", len(entityReports), "hot", len(hot))

	var alerts []*store.Alert
	for _, id := range hot {
		a, err := c.deepDive(ctx, id, entityReports[id])
		if err != nil {
			return nil, err
		}
		if a != nil {
			alerts = append(alerts, a)
		}
	}

	sync, err := c.temporalSync(ctx, reports)
	if err != nil {
		return nil, err
	}
	alerts = append(alerts, sync...)

	for _, a := range alerts {
		if err := c.gw.PutAlert(ctx, a); err != nil {
			return nil, fmt.Errorf("persist alert %s: %w", a.ID, err)
		}
	}
	c.log.Info("correlation done", "reports", len(reports), "alerts", len(alerts))
	return alerts, nil
}

// auditPass builds the entity → report set map over the given scopes.
func (c *Correlator) auditPass(ctx context.Context, reports []string) (map[string][]string, error) {
	out := make(map[string][]string)
	for _, rep := range reports {
		entities, err := c.gw.ListEntitiesByReport(ctx, rep)
		if err != nil {
			return nil, fmt.Errorf("audit report %s: %w", rep, err)
		}
		for _, e := range entities {
			out[e.ID] = append(out[e.ID], rep)
		}
	}
	return out, nil
}

// deepDive examines one hot dot: its documents are re-scanned for technical
// identifiers, and identifiers seen in more than one report become evidence.
func (c *Correlator) deepDive(ctx context.Context, entityID string, reports []string) (*store.Alert, error) {
	e, err := c.gw.GetEntity(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("deep dive %s: %w", entityID, err)
	}
	if e == nil {
		return nil, nil
	}

	var evidence []score.Evidence
	idReports := make(map[string]map[string]bool) // identifier → report set
	for _, docID := range e.Documents {
		doc, err := c.gw.GetDocument(ctx, docID)
		if err != nil {
			return nil, fmt.Errorf("deep dive %s: document %s: %w", entityID, docID, err)
		}
		if doc == nil {
			continue
		}
		evidence = append(evidence, score.Evidence{
			DocumentID: doc.ID, Source: doc.SourceURL, Tier: doc.TrustTier,
		})
		for _, ident := range extract.Identifiers(doc) {
			if idReports[ident] == nil {
				idReports[ident] = make(map[string]bool)
			}
			for _, rep := range doc.ReportIDs {
				idReports[ident][rep] = true
			}
		}
	}

	var shared []string
	for ident, reps := range idReports {
		if len(reps) > 1 {
			shared = append(shared, ident)
		}
	}
	sort.Strings(shared)

	factual, _ := score.Split(evidence)
	res, err := c.scorer.Score(factual)
	if err != nil {
		return nil, fmt.Errorf("score hot dot %s: %w", entityID, err)
	}

	sort.Strings(reports)
	alert := &store.Alert{
		ID:         uuid.NewString(),
		Kind:       KindEntityReuse,
		EntityIDs:  []string{entityID},
		ReportIDs:  reports,
		Evidence:   append(shared, e.Documents...),
		Confidence: res.Confidence,
	}
	if err := c.linkSuperseded(ctx, alert); err != nil {
		return nil, err
	}
	c.log.Warn("hot dot", "entity", entityID, "reports", len(reports), "shared_identifiers", len(shared))
	return alert, nil
}

// temporalSync flags groups of events from different reports that land
// inside the sync window of each other.
func (c *Correlator) temporalSync(ctx context.Context, reports []string) ([]*store.Alert, error) {
	inScope := make(map[string]bool, len(reports))
	for _, r := range reports {
		inScope[r] = true
	}
	all, err := c.gw.ListEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("temporal sync: %w", err)
	}

	type timed struct {
		ev *store.Event
		at time.Time
	}
	var events []timed
	for _, ev := range all {
		if !inScope[ev.ReportID] {
			continue
		}
		at, err := time.Parse(time.RFC3339, ev.Timestamp)
		if err != nil {
			continue // undated events cannot synchronize
		}
		events = append(events, timed{ev, at})
	}
	sort.Slice(events, func(i, j int) bool { return events[i].at.Before(events[j].at) })

	var alerts []*store.Alert
	var group []timed
	flush := func() error {
		defer func() { group = nil }()
		reps := make(map[string]bool)
		var evIDs, docIDs []string
		for _, t := range group {
			reps[t.ev.ReportID] = true
			evIDs = append(evIDs, t.ev.ID)
			docIDs = append(docIDs, t.ev.Documents...)
		}
		if len(reps) < 2 {
			return nil
		}
		var evidence []score.Evidence
		for _, docID := range dedup(docIDs) {
			doc, err := c.gw.GetDocument(ctx, docID)
			if err != nil || doc == nil {
				continue
			}
			evidence = append(evidence, score.Evidence{
				DocumentID: doc.ID, Source: doc.SourceURL, Tier: doc.TrustTier,
			})
		}
		factual, _ := score.Split(evidence)
		res, err := c.scorer.Score(factual)
		if err != nil {
			return fmt.Errorf("score sync group: %w", err)
		}
		alert := &store.Alert{
			ID:         uuid.NewString(),
			Kind:       KindTemporalSync,
			ReportIDs:  sortedKeys(reps),
			Evidence:   evIDs,
			Confidence: res.Confidence,
		}
		if err := c.linkSuperseded(ctx, alert); err != nil {
			return err
		}
		alerts = append(alerts, alert)
		return nil
	}
	for _, t := range events {
		if len(group) > 0 && t.at.Sub(group[len(group)-1].at) > c.cfg.SyncWindow {
			if err := flush(); err != nil {
				return nil, err
			}
		}
		group = append(group, t)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return alerts, nil
}

// linkSuperseded points the new alert at the most recent earlier alert of
// the same kind and entity scope, so re-runs refine rather than duplicate.
func (c *Correlator) linkSuperseded(ctx context.Context, alert *store.Alert) error {
	existing, err := c.gw.ListAlerts(ctx)
	if err != nil {
		return fmt.Errorf("list alerts: %w", err)
	}
	for _, old := range existing {
		if old.Kind == alert.Kind && sameSet(old.EntityIDs, alert.EntityIDs) && sameSet(old.ReportIDs, alert.ReportIDs) {
			alert.Supersedes = old.ID
		}
	}
	return nil
}

func dedup(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	a, b = dedup(a), dedup(b)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
