package tier1

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"

	"github.com/igasovic/PKM-sub000/internal/data/repos/tier1repo"
	t1 "github.com/igasovic/PKM-sub000/internal/domain/tier1"
	"github.com/igasovic/PKM-sub000/internal/observability"
	"github.com/igasovic/PKM-sub000/internal/pkg/dbctx"
	"github.com/igasovic/PKM-sub000/internal/pkg/pointers"
	"github.com/igasovic/PKM-sub000/internal/platform/openai"
)

// A retry claim older than this is treated as abandoned.
const autoRetryClaimTTL = 10 * time.Minute

type CollectSummary struct {
	Total       int `json:"total"`
	OK          int `json:"ok"`
	ParseError  int `json:"parse_error"`
	Error       int `json:"error"`
	Skipped     int `json:"skipped_lines,omitempty"`
	WrittenBack int `json:"written_back"`
}

type AutoRetryOutcome struct {
	SpawnedBatchID string `json:"spawned_batch_id,omitempty"`
	Reason         string `json:"reason,omitempty"`
	Error          string `json:"error,omitempty"`
}

type CollectResult struct {
	BatchID    string            `json:"batch_id"`
	Schema     string            `json:"schema"`
	Status     string            `json:"status"`
	IsTerminal bool              `json:"is_terminal"`
	Summary    CollectSummary    `json:"summary"`
	AutoRetry  *AutoRetryOutcome `json:"auto_retry,omitempty"`
}

type collection struct {
	record  *tier1repo.BatchRecord
	remote  openai.RemoteBatch
	output  []byte
	errors  []byte
	results []t1.BatchItemResult
	skipped int
	out     *CollectResult
}

// Collect refreshes a batch from the remote API and records its results in
// the schema that owns it.
func (s *Service) Collect(ctx context.Context, batchID string) (*CollectResult, error) {
	batchID = strings.TrimSpace(batchID)
	c := &collection{}
	_, err := s.pipe.run(ctx, FlowCollect, []attribute.KeyValue{attribute.String("batch_id", batchID)},
		step{StageLoaded, func(ctx context.Context) error {
			rec, err := s.store.FindBatchRecord(dbctx.With(ctx), batchID)
			if err != nil {
				return err
			}
			if rec == nil {
				return &BatchNotFoundError{BatchID: batchID}
			}
			c.record = rec
			return nil
		}},
		step{StagePrompted, func(context.Context) error { return nil }},
		step{StageResponded, func(ctx context.Context) error { return s.fetchRemote(ctx, batchID, c) }},
		step{StageParsed, func(context.Context) error {
			outRes, outSkipped := ParseBatchLines(c.output)
			errRes, errSkipped := ParseBatchLines(c.errors)
			c.results = MergeResults(outRes, errRes)
			c.skipped = outSkipped + errSkipped
			return nil
		}},
		step{StageWritten, func(ctx context.Context) error { return s.writeCollection(ctx, c) }},
	)
	if err != nil {
		return nil, err
	}

	if strings.EqualFold(c.remote.Status, "failed") {
		c.out.AutoRetry = s.autoRetry(ctx, c.record)
	}
	return c.out, nil
}

func (s *Service) fetchRemote(ctx context.Context, batchID string, c *collection) error {
	remote, err := s.api.RetrieveBatch(ctx, batchID)
	if err != nil {
		return err
	}
	c.remote = remote
	if id := pointers.Trimmed(remote.OutputFileID); id != "" {
		if c.output, err = s.api.FileContent(ctx, id); err != nil {
			return err
		}
	}
	if id := pointers.Trimmed(remote.ErrorFileID); id != "" {
		if c.errors, err = s.api.FileContent(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) writeCollection(ctx context.Context, c *collection) error {
	dbc := dbctx.With(ctx)
	schema := c.record.Schema
	batchID := c.record.Batch.BatchID

	refreshed := &t1.Batch{
		BatchID:      batchID,
		Status:       c.remote.Status,
		OutputFileID: pointers.TrimmedOrNil(c.remote.OutputFileID),
		ErrorFileID:  pointers.TrimmedOrNil(c.remote.ErrorFileID),
		RequestCount: c.remote.Total,
		CreatedAt:    c.record.Batch.CreatedAt,
	}
	if c.remote.InputFileID != "" {
		in := c.remote.InputFileID
		refreshed.InputFileID = &in
	}
	if err := s.store.UpsertBatchRow(dbc, schema, refreshed, c.record.Batch.RequestCount, nil); err != nil {
		return err
	}
	if err := s.store.UpsertBatchResults(dbc, schema, batchID, c.results); err != nil {
		return err
	}

	sum := CollectSummary{Total: len(c.results), Skipped: c.skipped}
	for _, r := range c.results {
		switch r.Status {
		case t1.ResultOK:
			sum.OK++
		case t1.ResultParseError:
			sum.ParseError++
		default:
			sum.Error++
		}
	}
	sum.WrittenBack = s.writeBack(dbc, schema, c.record.Batch.Model, c.results)

	m := observability.Current()
	m.AddBatchResults(t1.ResultOK, sum.OK)
	m.AddBatchResults(t1.ResultParseError, sum.ParseError)
	m.AddBatchResults(t1.ResultError, sum.Error)

	c.out = &CollectResult{
		BatchID:    batchID,
		Schema:     schema,
		Status:     c.remote.Status,
		IsTerminal: t1.IsTerminal(c.remote.Status),
		Summary:    sum,
	}
	s.log.Info("tier1 batch collected",
		"batch_id", batchID, "schema", schema, "status", c.remote.Status,
		"ok", sum.OK, "parse_error", sum.ParseError, "error", sum.Error,
	)
	return nil
}

// writeBack copies ok classifications into their entries. Failures are
// logged per entry.
func (s *Service) writeBack(dbc dbctx.Context, schema, model string, results []t1.BatchItemResult) int {
	if s.entries == nil {
		return 0
	}
	written := 0
	for _, r := range results {
		if r.Status != t1.ResultOK {
			continue
		}
		entryID, ok := ParseEntryCustomID(r.CustomID)
		if !ok {
			continue
		}
		var parsed Result
		if err := json.Unmarshal(r.Parsed, &parsed); err != nil {
			s.log.Warn("tier1 write-back: bad parsed payload", "custom_id", r.CustomID, "error", err)
			continue
		}
		found, err := s.entries.UpdateByEntryID(dbc, schema, entryID, enrichmentColumns(parsed, model))
		if err != nil {
			s.log.Warn("tier1 write-back failed", "entry_id", entryID, "schema", schema, "error", err)
			continue
		}
		if !found {
			s.log.Debug("tier1 write-back: entry missing", "entry_id", entryID, "schema", schema)
			continue
		}
		written++
	}
	return written
}

func enrichmentColumns(r Result, model string) map[string]interface{} {
	cols := map[string]interface{}{
		"topic_primary":     r.TopicPrimary,
		"topic_secondary":   r.TopicSecondary,
		"keywords":          pq.StringArray(r.Keywords),
		"gist":              r.Gist,
		"enrichment_status": "completed",
	}
	if r.TopicPrimaryConfidence != nil {
		cols["topic_primary_confidence"] = *r.TopicPrimaryConfidence
	}
	if r.TopicSecondaryConfidence != nil {
		cols["topic_secondary_confidence"] = *r.TopicSecondaryConfidence
	}
	if model != "" {
		cols["enrichment_model"] = model
	}
	return cols
}

// autoRetry resubmits a failed batch's stored requests once. The original
// batch is claimed before the remote submit and stamped with the new id after
// it, so concurrent collects of the same batch spawn at most one retry.
// Errors are reported in the outcome, never returned.
func (s *Service) autoRetry(ctx context.Context, rec *tier1repo.BatchRecord) *AutoRetryOutcome {
	orig := rec.Batch.BatchID
	meta := map[string]any{}
	if len(rec.Batch.Metadata) > 0 {
		_ = json.Unmarshal(rec.Batch.Metadata, &meta)
	}
	if spawned, _ := meta[t1.MetaAutoRetrySpawnedBatchID].(string); spawned != "" {
		return &AutoRetryOutcome{SpawnedBatchID: spawned, Reason: "already_spawned"}
	}
	depth := metaInt(meta[t1.MetaAutoRetryDepth])
	if depth >= s.cfg.AutoRetryMaxDepth {
		observability.Current().IncAutoRetry("depth_exceeded")
		s.log.Info("tier1 auto-retry not spawned: depth limit", "batch_id", orig, "schema", rec.Schema, "depth", depth)
		return &AutoRetryOutcome{Reason: "depth_exceeded"}
	}

	fail := func(err error) *AutoRetryOutcome {
		observability.Current().IncAutoRetry("error")
		s.log.Warn("tier1 auto-retry failed", "batch_id", orig, "schema", rec.Schema, "error", err)
		return &AutoRetryOutcome{Error: err.Error()}
	}

	now := s.now()
	claimed, err := s.store.ClaimAutoRetry(dbctx.With(ctx), rec.Schema, orig, now, now.Add(-autoRetryClaimTTL))
	if err != nil {
		return fail(fmt.Errorf("claim original batch: %w", err))
	}
	if !claimed {
		return s.claimedElsewhere(ctx, orig)
	}

	model := rec.Batch.Model
	if model == "" {
		model = s.cfg.BatchModel
	}
	sub := &submission{
		schema: rec.Schema,
		model:  model,
		metadata: map[string]any{
			t1.MetaAutoRetryOf:    orig,
			t1.MetaAutoRetryDepth: depth + 1,
		},
	}
	_, err = s.pipe.run(ctx, FlowRetry, []attribute.KeyValue{attribute.String("batch_id", orig)},
		step{StageLoaded, func(ctx context.Context) error {
			items, err := s.store.ListBatchItems(dbctx.With(ctx), rec.Schema, orig)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				return fmt.Errorf("batch %s has no stored items", orig)
			}
			sub.items = items
			return nil
		}},
		step{StagePrompted, func(context.Context) error {
			for i := range sub.items {
				sub.items[i].BatchID = ""
				sub.items[i].CreatedAt = time.Time{}
			}
			return nil
		}},
		step{StageResponded, func(ctx context.Context) error { return s.submitRemote(ctx, sub) }},
		step{StageParsed, func(context.Context) error { return parseSubmission(sub) }},
		step{StageWritten, func(ctx context.Context) error { return s.writeSubmission(ctx, sub) }},
	)
	if err != nil {
		if id := strings.TrimSpace(sub.remote.ID); id != "" {
			out := fail(err)
			out.SpawnedBatchID = id
			if stampErr := s.stampSpawned(ctx, rec.Schema, orig, id); stampErr != nil {
				s.log.Warn("tier1 auto-retry stamp failed", "batch_id", orig, "schema", rec.Schema, "error", stampErr)
			}
			return out
		}
		if relErr := s.store.ReleaseAutoRetryClaim(dbctx.With(ctx), rec.Schema, orig); relErr != nil {
			s.log.Warn("tier1 auto-retry claim not released", "batch_id", orig, "schema", rec.Schema, "error", relErr)
		}
		return fail(err)
	}

	newID := sub.result.BatchID
	if err := s.stampSpawned(ctx, rec.Schema, orig, newID); err != nil {
		out := fail(fmt.Errorf("stamp original batch: %w", err))
		out.SpawnedBatchID = newID
		return out
	}
	observability.Current().IncAutoRetry("spawned")
	s.log.Info("tier1 auto-retry spawned", "batch_id", orig, "schema", rec.Schema, "retry_batch_id", newID, "depth", depth+1)
	return &AutoRetryOutcome{SpawnedBatchID: newID}
}

func (s *Service) stampSpawned(ctx context.Context, schema, batchID, retryID string) error {
	return s.store.MergeBatchMetadata(dbctx.With(ctx), schema, batchID, map[string]any{
		t1.MetaAutoRetrySpawnedBatchID: retryID,
		t1.MetaAutoRetrySpawnedAt:      s.now().Format(time.RFC3339),
	})
}

// claimedElsewhere reports a retry that another collect has spawned or is
// still submitting.
func (s *Service) claimedElsewhere(ctx context.Context, batchID string) *AutoRetryOutcome {
	rec, err := s.store.FindBatchRecord(dbctx.With(ctx), batchID)
	if err == nil && rec != nil && len(rec.Batch.Metadata) > 0 {
		meta := map[string]any{}
		if json.Unmarshal(rec.Batch.Metadata, &meta) == nil {
			if spawned, _ := meta[t1.MetaAutoRetrySpawnedBatchID].(string); spawned != "" {
				return &AutoRetryOutcome{SpawnedBatchID: spawned, Reason: "already_spawned"}
			}
		}
	}
	s.log.Info("tier1 auto-retry already in progress", "batch_id", batchID)
	return &AutoRetryOutcome{Reason: "in_progress"}
}

func metaInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	case string:
		var out int
		if _, err := fmt.Sscan(n, &out); err == nil {
			return out
		}
	}
	return 0
}
