package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/igasovic/PKM-sub000/internal/clients/redis"
	"github.com/igasovic/PKM-sub000/internal/data/repos/tier1repo"
	"github.com/igasovic/PKM-sub000/internal/modules/tier1"
	"github.com/igasovic/PKM-sub000/internal/observability"
	"github.com/igasovic/PKM-sub000/internal/platform/logger"
)

const (
	DefaultInterval = 10 * time.Minute
	MinInterval     = 5 * time.Second
	DefaultLimit    = 20
	MaxLimit        = 200

	SweepLeaseKey = "pkm:tier1:sweep"
)

// Collector is the part of the Tier-1 service a sweep drives.
type Collector interface {
	PendingBatches(ctx context.Context, limit int) ([]tier1repo.PendingBatch, error)
	Collect(ctx context.Context, batchID string) (*tier1.CollectResult, error)
}

type Config struct {
	Interval time.Duration
	Limit    int
}

// SweepReport describes one cycle.
type SweepReport struct {
	Listed       int               `json:"listed"`
	Collected    int               `json:"collected"`
	Errors       map[string]string `json:"errors"`
	SkippedBusy  bool              `json:"skipped_busy,omitempty"`
	SkippedLease bool              `json:"skipped_lease,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// Failed reports whether the cycle or any batch in it failed.
func (r SweepReport) Failed() bool { return r.Error != "" || len(r.Errors) > 0 }

// Tier1Worker periodically collects every pending batch.
type Tier1Worker struct {
	log       *logger.Logger
	collector Collector
	lease     redis.Lease
	interval  time.Duration
	limit     int

	busy atomic.Bool
	done chan struct{}
}

// NewTier1Worker clamps cfg to the allowed ranges. A nil lease disables the
// cross-replica guard.
func NewTier1Worker(cfg Config, collector Collector, lease redis.Lease, baseLog *logger.Logger) *Tier1Worker {
	return &Tier1Worker{
		log:       baseLog.With("component", "Tier1BatchWorker"),
		collector: collector,
		lease:     lease,
		interval:  ClampInterval(cfg.Interval),
		limit:     ClampLimit(cfg.Limit),
		done:      make(chan struct{}),
	}
}

func ClampInterval(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultInterval
	}
	if d < MinInterval {
		return MinInterval
	}
	return d
}

func ClampLimit(n int) int {
	if n <= 0 {
		return DefaultLimit
	}
	if n > MaxLimit {
		return MaxLimit
	}
	return n
}

func (w *Tier1Worker) Interval() time.Duration { return w.interval }

// Start runs a sweep every interval until ctx is done.
func (w *Tier1Worker) Start(ctx context.Context) {
	w.log.Info("Starting tier1 batch worker", "interval", w.interval.String(), "limit", w.limit)
	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				w.log.Info("Tier1 batch worker stopped")
				return
			case <-ticker.C:
				w.RunOnce(ctx)
			}
		}
	}()
}

// Wait blocks until a started worker has exited.
func (w *Tier1Worker) Wait() { <-w.done }

// RunOnce performs one sweep. It never panics and never returns an error;
// failures are recorded in the report.
func (w *Tier1Worker) RunOnce(ctx context.Context) (report SweepReport) {
	report.Errors = map[string]string{}
	if !w.busy.CompareAndSwap(false, true) {
		report.SkippedBusy = true
		w.log.Debug("tier1 sweep skipped: previous cycle still running")
		return report
	}
	defer w.busy.Store(false)

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("tier1 sweep panic", "panic", r)
			report.Error = fmt.Sprintf("panic: %v", r)
		}
		outcome := "ok"
		switch {
		case report.SkippedLease:
			outcome = "skipped_lease"
		case report.Error != "":
			outcome = "error"
		case len(report.Errors) > 0:
			outcome = "partial"
		}
		observability.Current().ObserveSweep(outcome, time.Since(start), report.Collected, len(report.Errors))
	}()

	if w.lease != nil {
		token, err := w.lease.Acquire(ctx, SweepLeaseKey, w.interval)
		if err != nil || token == "" {
			report.SkippedLease = true
			w.log.Warn("tier1 sweep skipped: lease unavailable", "error", err)
			return report
		}
		defer func() {
			if err := w.lease.Release(context.Background(), SweepLeaseKey, token); err != nil {
				w.log.Warn("tier1 sweep lease release failed", "error", err)
			}
		}()
	}

	pending, err := w.collector.PendingBatches(ctx, w.limit)
	if err != nil {
		report.Error = err.Error()
		w.log.Error("tier1 sweep: listing pending batches failed", "error", err)
		return report
	}
	report.Listed = len(pending)

	for _, p := range pending {
		if ctx.Err() != nil {
			report.Errors[p.BatchID] = ctx.Err().Error()
			continue
		}
		if err := w.collectOne(ctx, p); err != nil {
			report.Errors[p.BatchID] = err.Error()
			w.log.Warn("tier1 sweep: collect failed", "batch_id", p.BatchID, "schema", p.Schema, "error", err)
			continue
		}
		report.Collected++
	}
	w.log.Info("tier1 sweep finished", "listed", report.Listed, "collected", report.Collected, "errors", len(report.Errors))
	return report
}

// collectOne isolates a single batch so a panic in one cannot stop the sweep.
func (w *Tier1Worker) collectOne(ctx context.Context, p tier1repo.PendingBatch) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("tier1 collect panic", "batch_id", p.BatchID, "schema", p.Schema, "panic", r)
			err = &panicError{Val: r}
		}
	}()
	_, err = w.collector.Collect(ctx, p.BatchID)
	return err
}

type panicError struct{ Val any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }
