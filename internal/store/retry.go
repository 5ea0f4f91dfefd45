package store

import (
	"context"
	"fmt"
	"time"
)

// RetryConfig bounds gateway calls: every call gets a timeout, a failing
// call is retried with exponential backoff, and once Attempts is exhausted
// the call fails with ErrUnavailable. No call blocks indefinitely.
type RetryConfig struct {
	Attempts int           // total tries per call
	Backoff  time.Duration // first retry delay, doubled each retry
	Timeout  time.Duration // per-attempt deadline
}

// DefaultRetryConfig matches the engine defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{Attempts: 3, Backoff: 200 * time.Millisecond, Timeout: 5 * time.Second}
}

// Retrying wraps a Store with the bounded retry policy. It is the layer the
// ingestion engine talks to; the inner store never sees an unbounded context.
type Retrying struct {
	inner Store
	cfg   RetryConfig
}

// WithRetry wraps inner with cfg. Zero-value cfg fields fall back to defaults.
func WithRetry(inner Store, cfg RetryConfig) *Retrying {
	def := DefaultRetryConfig()
	if cfg.Attempts <= 0 {
		cfg.Attempts = def.Attempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = def.Backoff
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Retrying{inner: inner, cfg: cfg}
}

// retry runs fn up to cfg.Attempts times with per-attempt timeouts.
// Context cancellation stops immediately; other errors back off and retry.
func retry[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	delay := cfg.Backoff
	for attempt := 0; attempt < cfg.Attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		attemptCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		v, err := fn(attemptCtx)
		cancel()
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		lastErr = err
	}
	return zero, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

// retryErr is retry for error-only calls.
func retryErr(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := retry(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func (r *Retrying) PutDocument(ctx context.Context, doc *Document) (bool, error) {
	return retry(ctx, r.cfg, func(ctx context.Context) (bool, error) {
		return r.inner.PutDocument(ctx, doc)
	})
}

func (r *Retrying) GetDocument(ctx context.Context, id string) (*Document, error) {
	return retry(ctx, r.cfg, func(ctx context.Context) (*Document, error) {
		return r.inner.GetDocument(ctx, id)
	})
}

func (r *Retrying) ListDocumentsByReport(ctx context.Context, reportID string) ([]*Document, error) {
	return retry(ctx, r.cfg, func(ctx context.Context) ([]*Document, error) {
		return r.inner.ListDocumentsByReport(ctx, reportID)
	})
}

func (r *Retrying) PutTrustRecord(ctx context.Context, rec *TrustRecord) error {
	return retryErr(ctx, r.cfg, func(ctx context.Context) error {
		return r.inner.PutTrustRecord(ctx, rec)
	})
}

func (r *Retrying) GetTrustRecord(ctx context.Context, documentID string) (*TrustRecord, error) {
	return retry(ctx, r.cfg, func(ctx context.Context) (*TrustRecord, error) {
		return r.inner.GetTrustRecord(ctx, documentID)
	})
}

func (r *Retrying) OverrideTier(ctx context.Context, documentID string, tier Tier, analyst, note string) error {
	// Overrides are analyst actions, not batch units; no retry so a
	// misdirected override never double-applies after a partial failure.
	return r.inner.OverrideTier(ctx, documentID, tier, analyst, note)
}

func (r *Retrying) MergeEntity(ctx context.Context, delta *Entity) (*Entity, error) {
	return retry(ctx, r.cfg, func(ctx context.Context) (*Entity, error) {
		return r.inner.MergeEntity(ctx, delta)
	})
}

func (r *Retrying) GetEntity(ctx context.Context, id string) (*Entity, error) {
	return retry(ctx, r.cfg, func(ctx context.Context) (*Entity, error) {
		return r.inner.GetEntity(ctx, id)
	})
}

func (r *Retrying) FindEntitiesByAlias(ctx context.Context, alias string) ([]*Entity, error) {
	return retry(ctx, r.cfg, func(ctx context.Context) ([]*Entity, error) {
		return r.inner.FindEntitiesByAlias(ctx, alias)
	})
}

func (r *Retrying) ListEntities(ctx context.Context) ([]*Entity, error) {
	return retry(ctx, r.cfg, func(ctx context.Context) ([]*Entity, error) {
		return r.inner.ListEntities(ctx)
	})
}

func (r *Retrying) ListEntitiesByReport(ctx context.Context, reportID string) ([]*Entity, error) {
	return retry(ctx, r.cfg, func(ctx context.Context) ([]*Entity, error) {
		return r.inner.ListEntitiesByReport(ctx, reportID)
	})
}

func (r *Retrying) MergeRelationship(ctx context.Context, delta *Relationship) (*Relationship, error) {
	return retry(ctx, r.cfg, func(ctx context.Context) (*Relationship, error) {
		return r.inner.MergeRelationship(ctx, delta)
	})
}

func (r *Retrying) ListRelationships(ctx context.Context) ([]*Relationship, error) {
	return retry(ctx, r.cfg, func(ctx context.Context) ([]*Relationship, error) {
		return r.inner.ListRelationships(ctx)
	})
}

func (r *Retrying) ListRelationshipsForEntity(ctx context.Context, entityID string) ([]*Relationship, error) {
	return retry(ctx, r.cfg, func(ctx context.Context) ([]*Relationship, error) {
		return r.inner.ListRelationshipsForEntity(ctx, entityID)
	})
}

func (r *Retrying) PutEvent(ctx context.Context, ev *Event) error {
	return retryErr(ctx, r.cfg, func(ctx context.Context) error {
		return r.inner.PutEvent(ctx, ev)
	})
}

func (r *Retrying) ListEvents(ctx context.Context) ([]*Event, error) {
	return retry(ctx, r.cfg, func(ctx context.Context) ([]*Event, error) {
		return r.inner.ListEvents(ctx)
	})
}

func (r *Retrying) ListEventsByReport(ctx context.Context, reportID string) ([]*Event, error) {
	return retry(ctx, r.cfg, func(ctx context.Context) ([]*Event, error) {
		return r.inner.ListEventsByReport(ctx, reportID)
	})
}

func (r *Retrying) PutAlert(ctx context.Context, a *Alert) error {
	return retryErr(ctx, r.cfg, func(ctx context.Context) error {
		return r.inner.PutAlert(ctx, a)
	})
}

func (r *Retrying) ListAlerts(ctx context.Context) ([]*Alert, error) {
	return retry(ctx, r.cfg, func(ctx context.Context) ([]*Alert, error) {
		return r.inner.ListAlerts(ctx)
	})
}

func (r *Retrying) ListReports(ctx context.Context) ([]string, error) {
	return retry(ctx, r.cfg, func(ctx context.Context) ([]string, error) {
		return r.inner.ListReports(ctx)
	})
}

func (r *Retrying) Close() error { return r.inner.Close() }
