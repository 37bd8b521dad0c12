package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/igasovic/PKM-sub000/internal/data/repos/tier1repo"
	"github.com/igasovic/PKM-sub000/internal/modules/tier1"
	"github.com/igasovic/PKM-sub000/internal/platform/logger"
)

type fakeCollector struct {
	mu       sync.Mutex
	pending  []tier1repo.PendingBatch
	listErr  error
	failures map[string]error
	panics   map[string]bool
	block    chan struct{}
	limit    int
	calls    []string
}

func (f *fakeCollector) PendingBatches(_ context.Context, limit int) ([]tier1repo.PendingBatch, error) {
	f.mu.Lock()
	f.limit = limit
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	return f.pending, f.listErr
}

func (f *fakeCollector) Collect(_ context.Context, id string) (*tier1.CollectResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, id)
	f.mu.Unlock()
	if f.panics[id] {
		panic("collector exploded")
	}
	if err := f.failures[id]; err != nil {
		return nil, err
	}
	return &tier1.CollectResult{BatchID: id}, nil
}

type fakeLease struct {
	token string
	err   error
	freed []string
}

func (l *fakeLease) Acquire(context.Context, string, time.Duration) (string, error) { return l.token, l.err }
func (l *fakeLease) Release(_ context.Context, _ string, token string) error {
	l.freed = append(l.freed, token)
	return nil
}
func (l *fakeLease) Close() error { return nil }

func pending(ids ...string) []tier1repo.PendingBatch {
	out := make([]tier1repo.PendingBatch, len(ids))
	for i, id := range ids {
		out[i] = tier1repo.PendingBatch{Schema: "pkm", BatchID: id}
	}
	return out
}

func TestClamps(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want time.Duration
	}{
		{0, DefaultInterval},
		{time.Second, MinInterval},
		{time.Minute, time.Minute},
	}
	for _, tc := range cases {
		if got := ClampInterval(tc.in); got != tc.want {
			t.Fatalf("ClampInterval(%s) = %s", tc.in, got)
		}
	}
	for in, want := range map[int]int{0: DefaultLimit, -1: DefaultLimit, 50: 50, 1000: MaxLimit} {
		if got := ClampLimit(in); got != want {
			t.Fatalf("ClampLimit(%d) = %d", in, got)
		}
	}
}

func TestRunOnceIsolatesFailures(t *testing.T) {
	c := &fakeCollector{
		pending:  pending("a", "b", "c", "d"),
		failures: map[string]error{"b": errors.New("remote down")},
		panics:   map[string]bool{"c": true},
	}
	w := NewTier1Worker(Config{Limit: 500}, c, nil, logger.Nop())
	r := w.RunOnce(context.Background())
	if r.Listed != 4 || r.Collected != 2 || len(r.Errors) != 2 {
		t.Fatalf("unexpected report %+v", r)
	}
	if r.Errors["b"] != "remote down" || r.Errors["c"] == "" {
		t.Fatalf("per-batch errors: %v", r.Errors)
	}
	if len(c.calls) != 4 || c.limit != MaxLimit {
		t.Fatalf("calls=%v limit=%d", c.calls, c.limit)
	}
	if !r.Failed() {
		t.Fatalf("report with errors must be failed")
	}
}

func TestRunOnceListFailure(t *testing.T) {
	c := &fakeCollector{listErr: errors.New("db gone")}
	w := NewTier1Worker(Config{}, c, nil, logger.Nop())
	r := w.RunOnce(context.Background())
	if r.Error != "db gone" || len(c.calls) != 0 {
		t.Fatalf("unexpected report %+v", r)
	}
}

func TestRunOnceSkipsWhenBusy(t *testing.T) {
	c := &fakeCollector{pending: pending("a"), block: make(chan struct{})}
	w := NewTier1Worker(Config{}, c, nil, logger.Nop())

	done := make(chan SweepReport)
	go func() { done <- w.RunOnce(context.Background()) }()
	for !w.busy.Load() {
		time.Sleep(time.Millisecond)
	}
	second := w.RunOnce(context.Background())
	if !second.SkippedBusy || second.Listed != 0 {
		t.Fatalf("overlapping sweep must be skipped: %+v", second)
	}
	close(c.block)
	first := <-done
	if first.Collected != 1 {
		t.Fatalf("first sweep: %+v", first)
	}
	if w.RunOnce(context.Background()).SkippedBusy {
		t.Fatalf("busy flag not released")
	}
}

func TestRunOnceLease(t *testing.T) {
	c := &fakeCollector{pending: pending("a")}
	held := &fakeLease{}
	w := NewTier1Worker(Config{}, c, held, logger.Nop())
	if r := w.RunOnce(context.Background()); !r.SkippedLease || len(c.calls) != 0 {
		t.Fatalf("held lease must skip the sweep: %+v", r)
	}

	free := &fakeLease{token: "tok"}
	w = NewTier1Worker(Config{}, c, free, logger.Nop())
	if r := w.RunOnce(context.Background()); r.Collected != 1 {
		t.Fatalf("sweep with lease: %+v", r)
	}
	if len(free.freed) != 1 || free.freed[0] != "tok" {
		t.Fatalf("lease not released: %v", free.freed)
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	c := &fakeCollector{}
	w := NewTier1Worker(Config{Interval: MinInterval}, c, nil, logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	cancel()
	finished := make(chan struct{})
	go func() { w.Wait(); close(finished) }()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not stop")
	}
}
