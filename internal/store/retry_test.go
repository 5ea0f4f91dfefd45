package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

// flaky wraps a MemStore and fails the first failures calls to GetDocument.
type flaky struct {
	*MemStore
	failures  int
	callCount int
}

func (f *flaky) GetDocument(ctx context.Context, id string) (*Document, error) {
	f.callCount++
	if f.callCount <= f.failures {
		return nil, errors.New("transient: connection reset")
	}
	return f.MemStore.GetDocument(ctx, id)
}

func TestRetrying_RecoversFromTransientFailure(t *testing.T) {
	inner := &flaky{MemStore: NewMemStore(), failures: 2}
	ctx := context.Background()
	if _, err := inner.PutDocument(ctx, testDoc("d1", "https://a.example/x", "r1")); err != nil {
		t.Fatalf("PutDocument: %v", err)
	}
	r := WithRetry(inner, RetryConfig{Attempts: 3, Backoff: time.Millisecond, Timeout: time.Second})
	d, err := r.GetDocument(ctx, "d1")
	if err != nil || d == nil {
		t.Fatalf("GetDocument after retries: %+v err=%v", d, err)
	}
	if inner.callCount != 3 {
		t.Errorf("expected 3 attempts, got %d", inner.callCount)
	}
}

func TestRetrying_ExhaustsBudget(t *testing.T) {
	inner := &flaky{MemStore: NewMemStore(), failures: 100}
	r := WithRetry(inner, RetryConfig{Attempts: 3, Backoff: time.Millisecond, Timeout: time.Second})
	_, err := r.GetDocument(context.Background(), "d1")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if inner.callCount != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", inner.callCount)
	}
}

func TestRetrying_ContextCancelStops(t *testing.T) {
	inner := &flaky{MemStore: NewMemStore(), failures: 100}
	r := WithRetry(inner, RetryConfig{Attempts: 10, Backoff: 50 * time.Millisecond, Timeout: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.GetDocument(ctx, "d1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
