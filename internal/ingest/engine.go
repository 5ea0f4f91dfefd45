// Package ingest runs the fusion pipeline: canonicalize, resolve, link,
// fuse, score. One Engine per store; batches are processed by a bounded
// worker pool and single-artifact failures never abort the batch.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"lattice/internal/canon"
	"lattice/internal/config"
	"lattice/internal/correlate"
	"lattice/internal/extract"
	"lattice/internal/graph"
	"lattice/internal/logging"
	"lattice/internal/resolve"
	"lattice/internal/score"
	"lattice/internal/store"
	"lattice/internal/timeline"
)

// Engine wires the pipeline stages over one gateway.
type Engine struct {
	gw         store.Store
	resolver   *resolve.Resolver
	builder    *graph.Builder
	scorer     *score.Scorer
	correlator *correlate.Correlator
	extractors []extract.Extractor
	cfg        config.Config
	limiter    *rate.Limiter
	log        *slog.Logger
}

// New builds an Engine. With no explicit extractors the built-in identifier
// extractor runs alone.
func New(gw store.Store, cfg config.Config, extractors ...extract.Extractor) *Engine {
	if len(extractors) == 0 {
		extractors = []extract.Extractor{extract.CheapExtractor{}}
	}
	scorer := score.New(cfg.ScoreConfig())
	e := &Engine{
		gw:         gw,
		resolver:   resolve.New(gw),
		builder:    graph.NewBuilder(gw),
		scorer:     scorer,
		correlator: correlate.New(gw, scorer, cfg.CorrelateConfig()),
		extractors: extractors,
		cfg:        cfg,
		log:        logging.New("ingest"),
	}
	if cfg.RateLimit > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return e
}

// QuarantineEntry records one artifact set aside as unparseable.
type QuarantineEntry struct {
	SourceFile string `json:"source_file"`
	Reason     string `json:"reason"`
}

// BatchResult summarizes one ingestion batch.
type BatchResult struct {
	Created     int                    `json:"created"`
	Duplicates  int                    `json:"duplicates"`
	Quarantined int                    `json:"quarantined"`
	Failed      int                    `json:"failed"`
	Events      int                    `json:"events"`
	Warnings    []resolve.MergeWarning `json:"warnings,omitempty"`
	Quarantine  []QuarantineEntry      `json:"quarantine,omitempty"`
}

// pendingClaim is a dated claim plus the document that asserted it.
type pendingClaim struct {
	claim extract.DatedClaim
	doc   *store.Document
}

// IngestBatch pushes artifacts through the pipeline. Workers run
// concurrently up to the configured pool size; dedup safety lives in the
// store's compare-and-set, so identical artifacts racing each other is fine.
func (e *Engine) IngestBatch(ctx context.Context, artifacts []canon.Artifact) (*BatchResult, error) {
	res := &BatchResult{}
	var mu sync.Mutex
	var pending []pendingClaim

	g, gctx := errgroup.WithContext(ctx)
	workers := e.cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	g.SetLimit(workers)

	for _, art := range artifacts {
		art := art
		g.Go(func() error {
			if e.limiter != nil {
				if err := e.limiter.Wait(gctx); err != nil {
					return err
				}
			}
			claims, warnings, outcome, err := e.processArtifact(gctx, art)
			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case outcomeCreated:
				res.Created++
				pending = append(pending, claims...)
				res.Warnings = append(res.Warnings, warnings...)
			case outcomeDuplicate:
				res.Duplicates++
			case outcomeQuarantined:
				res.Quarantined++
				res.Quarantine = append(res.Quarantine, QuarantineEntry{
					SourceFile: art.SourceFile, Reason: err.Error(),
				})
			case outcomeFailed:
				res.Failed++
				e.log.Warn("artifact failed", "source_file", art.SourceFile, "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	events, err := e.fuseAndPersist(ctx, pending)
	if err != nil {
		return res, err
	}
	res.Events = events
	e.log.Info("batch done",
		"created", res.Created, "duplicates", res.Duplicates,
		"quarantined", res.Quarantined, "failed", res.Failed, "events", res.Events)
	return res, nil
}

type outcome int

const (
	outcomeCreated outcome = iota
	outcomeDuplicate
	outcomeQuarantined
	outcomeFailed
)

func (e *Engine) processArtifact(ctx context.Context, art canon.Artifact) ([]pendingClaim, []resolve.MergeWarning, outcome, error) {
	doc, created, err := canon.Ingest(ctx, e.gw, art)
	var pe *canon.ParseError
	if errors.As(err, &pe) {
		return nil, nil, outcomeQuarantined, err
	}
	if err != nil {
		return nil, nil, outcomeFailed, err
	}
	if !created {
		return nil, nil, outcomeDuplicate, nil
	}

	var allWarnings []resolve.MergeWarning
	var pending []pendingClaim
	for _, ex := range e.extractors {
		mentions, err := ex.Mentions(ctx, doc)
		if err != nil {
			return nil, nil, outcomeFailed, fmt.Errorf("extract mentions: %w", err)
		}
		entities, warnings, err := e.resolver.Resolve(ctx, doc, mentions)
		if err != nil {
			return nil, nil, outcomeFailed, fmt.Errorf("resolve: %w", err)
		}
		allWarnings = append(allWarnings, warnings...)
		if _, err := e.builder.Update(ctx, doc, entities); err != nil {
			return nil, nil, outcomeFailed, fmt.Errorf("graph: %w", err)
		}
		claims, err := ex.Claims(ctx, doc)
		if err != nil {
			return nil, nil, outcomeFailed, fmt.Errorf("extract claims: %w", err)
		}
		for _, cl := range claims {
			pending = append(pending, pendingClaim{claim: cl, doc: doc})
		}
	}
	return pending, allWarnings, outcomeCreated, nil
}

// fuseAndPersist folds the batch's dated claims into the stored event set.
// Event IDs are derived from report, key, and fused timestamp, so re-fusing
// is an upsert, never a duplicate row.
func (e *Engine) fuseAndPersist(ctx context.Context, pending []pendingClaim) (int, error) {
	if len(pending) == 0 {
		return 0, nil
	}
	byReport := make(map[string][]timeline.Event)
	for _, p := range pending {
		for _, rep := range reportsOf(p.doc) {
			byReport[rep] = append(byReport[rep], timeline.Event{
				Key:         p.claim.Key,
				EntityKey:   p.claim.EntityKey,
				Description: p.claim.Description,
				At:          p.claim.Timestamp,
				Tier:        p.doc.TrustTier,
				Documents:   []string{p.doc.ID},
				Sources:     []string{p.doc.SourceURL},
				ReportID:    rep,
			})
		}
	}

	count := 0
	for rep, events := range byReport {
		existing, err := e.loadEvents(ctx, rep)
		if err != nil {
			return count, err
		}
		tl := timeline.Fuse(append(existing, events...), e.cfg.TimelineConfig())
		for _, fe := range tl.Events {
			rec, err := e.toRecord(ctx, fe, rep)
			if err != nil {
				return count, err
			}
			if err := e.gw.PutEvent(ctx, rec); err != nil {
				return count, fmt.Errorf("persist event %s: %w", rec.ID, err)
			}
			count++
		}
	}
	return count, nil
}

func reportsOf(doc *store.Document) []string {
	if len(doc.ReportIDs) == 0 {
		return []string{""}
	}
	return doc.ReportIDs
}

// EventID derives the stable event identity from report scope, claim key,
// and fused timestamp. The report segment keeps the same claim asserted in
// two reports on two rows.
func EventID(reportID, key string, at time.Time) string {
	return "evt:" + reportID + "/" + key + "@" + at.UTC().Format(time.RFC3339)
}

func (e *Engine) toRecord(ctx context.Context, fe timeline.FusedEvent, reportID string) (*store.Event, error) {
	evidence, err := e.evidenceFor(ctx, fe.Documents)
	if err != nil {
		return nil, err
	}
	factual, _ := score.Split(evidence)
	res, err := e.scorer.Score(factual)
	if err != nil {
		return nil, fmt.Errorf("score event %s: %w", fe.Key, err)
	}
	rec := &store.Event{
		ID:          EventID(reportID, fe.Key, fe.At),
		Key:         fe.Key,
		EntityKey:   fe.EntityKey,
		Description: fe.Description,
		Timestamp:   fe.At.UTC().Format(time.RFC3339),
		Confidence:  res.Confidence,
		Status:      fe.Status,
		Primary:     fe.Primary,
		Documents:   fe.Documents,
		ReportID:    reportID,
	}
	if !fe.Primary {
		rec.AlternativeOf = fe.Key
	}
	return rec, nil
}

// loadEvents rebuilds timeline inputs from stored events.
func (e *Engine) loadEvents(ctx context.Context, reportID string) ([]timeline.Event, error) {
	var recs []*store.Event
	var err error
	if reportID == "" {
		recs, err = e.gw.ListEvents(ctx)
	} else {
		recs, err = e.gw.ListEventsByReport(ctx, reportID)
	}
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	var out []timeline.Event
	for _, rec := range recs {
		at, err := time.Parse(time.RFC3339, rec.Timestamp)
		if err != nil {
			continue // undatable rows stay out of fusion
		}
		ev := timeline.Event{
			Key:         rec.Key,
			EntityKey:   rec.EntityKey,
			Description: rec.Description,
			At:          at,
			Documents:   rec.Documents,
			ReportID:    rec.ReportID,
		}
		for _, docID := range rec.Documents {
			doc, err := e.gw.GetDocument(ctx, docID)
			if err != nil || doc == nil {
				continue
			}
			ev.Sources = append(ev.Sources, doc.SourceURL)
			if weight(doc.TrustTier) > weight(ev.Tier) {
				ev.Tier = doc.TrustTier
			}
		}
		out = append(out, ev)
	}
	return out, nil
}

func weight(t store.Tier) float64 {
	if t == "" {
		return -1
	}
	return score.DefaultWeights()[t]
}

func (e *Engine) evidenceFor(ctx context.Context, docIDs []string) ([]score.Evidence, error) {
	var out []score.Evidence
	for _, id := range docIDs {
		doc, err := e.gw.GetDocument(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("evidence document %s: %w", id, err)
		}
		if doc == nil {
			continue
		}
		out = append(out, score.Evidence{DocumentID: doc.ID, Source: doc.SourceURL, Tier: doc.TrustTier})
	}
	return out, nil
}

// IngestDir reads every .json file under dir (recursively) as one artifact
// or an array of artifacts and ingests them as a single batch. Files that
// do not decode are quarantined, not fatal.
func (e *Engine) IngestDir(ctx context.Context, dir string) (*BatchResult, error) {
	var artifacts []canon.Artifact
	var quarantine []QuarantineEntry
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".json") {
			return nil
		}
		batch, qerr := readArtifactFile(path)
		if qerr != nil {
			quarantine = append(quarantine, QuarantineEntry{SourceFile: path, Reason: qerr.Error()})
			return nil
		}
		artifacts = append(artifacts, batch...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	res, err := e.IngestBatch(ctx, artifacts)
	if res != nil {
		res.Quarantined += len(quarantine)
		res.Quarantine = append(res.Quarantine, quarantine...)
	}
	return res, err
}

func readArtifactFile(path string) ([]canon.Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(string(data))
	var batch []canon.Artifact
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(data, &batch); err != nil {
			return nil, fmt.Errorf("decode artifact array: %w", err)
		}
	} else {
		var one canon.Artifact
		if err := json.Unmarshal(data, &one); err != nil {
			return nil, fmt.Errorf("decode artifact: %w", err)
		}
		batch = []canon.Artifact{one}
	}
	for i := range batch {
		if batch[i].SourceFile == "" {
			batch[i].SourceFile = path
		}
	}
	return batch, nil
}

// Timeline fuses the stored events of one report ("" = all reports).
func (e *Engine) Timeline(ctx context.Context, reportID string) (*timeline.Timeline, error) {
	events, err := e.loadEvents(ctx, reportID)
	if err != nil {
		return nil, err
	}
	return timeline.Fuse(events, e.cfg.TimelineConfig()), nil
}

// GraphMetrics computes centrality over the current graph.
func (e *Engine) GraphMetrics(ctx context.Context) ([]graph.Metrics, error) {
	snap, err := graph.Load(ctx, e.gw)
	if err != nil {
		return nil, err
	}
	return snap.Compute(), nil
}

// Correlate runs the cross-report scan.
func (e *Engine) Correlate(ctx context.Context, reports []string) ([]*store.Alert, error) {
	return e.correlator.Correlate(ctx, reports)
}

// ClaimScore is the scored view of one claim key.
type ClaimScore struct {
	Key         string                    `json:"key"`
	Result      score.Result              `json:"result"`
	Attribution []score.SourceAttribution `json:"attribution,omitempty"`
}

// ScoreClaim scores the evidence behind a claim key. Disinformation
// documents are routed to attribution and contribute nothing to confidence.
func (e *Engine) ScoreClaim(ctx context.Context, key string) (*ClaimScore, error) {
	events, err := e.gw.ListEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	docSet := make(map[string]bool)
	for _, ev := range events {
		if ev.Key != key {
			continue
		}
		for _, id := range ev.Documents {
			docSet[id] = true
		}
	}
	if len(docSet) == 0 {
		return nil, fmt.Errorf("no evidence for claim %q", key)
	}
	ids := make([]string, 0, len(docSet))
	for id := range docSet {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	evidence, err := e.evidenceFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	factual, attribution := score.Split(evidence)
	res, err := e.scorer.Score(factual)
	if err != nil {
		return nil, err
	}
	out := &ClaimScore{Key: key, Result: res}
	if len(attribution) > 0 {
		out.Attribution = e.scorer.Attribution(attribution)
	}
	return out, nil
}

// ReportStatus is the per-report record census.
type ReportStatus struct {
	ReportID  string `json:"report_id"`
	Namespace string `json:"namespace"`
	Documents int    `json:"documents"`
	Entities  int    `json:"entities"`
	Events    int    `json:"events"`
}

// Status counts stored records per report plus global alerts.
func (e *Engine) Status(ctx context.Context) ([]ReportStatus, int, error) {
	reports, err := e.gw.ListReports(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list reports: %w", err)
	}
	var out []ReportStatus
	for _, rep := range reports {
		docs, err := e.gw.ListDocumentsByReport(ctx, rep)
		if err != nil {
			return nil, 0, err
		}
		ents, err := e.gw.ListEntitiesByReport(ctx, rep)
		if err != nil {
			return nil, 0, err
		}
		events, err := e.gw.ListEventsByReport(ctx, rep)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, ReportStatus{
			ReportID:  rep,
			Namespace: store.Namespace(rep),
			Documents: len(docs),
			Entities:  len(ents),
			Events:    len(events),
		})
	}
	alerts, err := e.gw.ListAlerts(ctx)
	if err != nil {
		return nil, 0, err
	}
	return out, len(alerts), nil
}

// Store exposes the gateway for read-side callers.
func (e *Engine) Store() store.Store { return e.gw }
