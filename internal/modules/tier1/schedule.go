package tier1

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	t1 "github.com/igasovic/PKM-sub000/internal/domain/tier1"
	"github.com/igasovic/PKM-sub000/internal/pkg/dbctx"
	pkgerrors "github.com/igasovic/PKM-sub000/internal/pkg/errors"
	"github.com/igasovic/PKM-sub000/internal/platform/openai"
)

// BatchItemInput is one entry to schedule. CustomID defaults to
// entry_<EntryID>, or item_<index> when no entry id is given.
type BatchItemInput struct {
	Item
	CustomID string `json:"custom_id,omitempty"`
	EntryID  *int64 `json:"entry_id,omitempty"`
}

type ScheduleOptions struct {
	Model    string         `json:"model,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type ScheduleResult struct {
	BatchID      string `json:"batch_id"`
	Status       string `json:"status"`
	Schema       string `json:"schema"`
	RequestCount int    `json:"request_count"`
}

// EntryCustomID is the custom_id that routes a result back to its entry.
func EntryCustomID(entryID int64) string { return "entry_" + strconv.FormatInt(entryID, 10) }

// ParseEntryCustomID reverses EntryCustomID.
func ParseEntryCustomID(customID string) (int64, bool) {
	rest, ok := strings.CutPrefix(customID, "entry_")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// submission carries a batch through Call, Parse and Write.
type submission struct {
	schema   string
	model    string
	items    []t1.BatchItem
	metadata map[string]any
	remote   openai.RemoteBatch
	result   *ScheduleResult
}

// EnqueueBatch submits items as one remote batch and records it in the
// active schema. Any item without clean_text fails the whole call.
func (s *Service) EnqueueBatch(ctx context.Context, items []BatchItemInput, opts ScheduleOptions) (*ScheduleResult, error) {
	sub := &submission{model: s.cfg.BatchModel, metadata: opts.Metadata}
	if strings.TrimSpace(opts.Model) != "" {
		sub.model = strings.TrimSpace(opts.Model)
	}
	_, err := s.pipe.run(ctx, FlowSchedule, []attribute.KeyValue{attribute.Int("items", len(items))},
		step{StageLoaded, func(ctx context.Context) error {
			if len(items) == 0 {
				return fmt.Errorf("%w: at least one item is required", pkgerrors.ErrInvalidArgument)
			}
			for i, it := range items {
				if strings.TrimSpace(it.CleanText) == "" {
					return fmt.Errorf("%w: item %d: clean_text is required", pkgerrors.ErrInvalidArgument, i)
				}
			}
			schema, err := s.router.ActiveSchema(ctx)
			if err != nil {
				return err
			}
			sub.schema = schema
			return nil
		}},
		step{StagePrompted, func(context.Context) error {
			built, err := buildBatchItems(items)
			if err != nil {
				return err
			}
			sub.items = built
			return nil
		}},
		step{StageResponded, func(ctx context.Context) error { return s.submitRemote(ctx, sub) }},
		step{StageParsed, func(context.Context) error { return parseSubmission(sub) }},
		step{StageWritten, func(ctx context.Context) error { return s.writeSubmission(ctx, sub) }},
	)
	if err != nil {
		return nil, err
	}
	s.log.Info("tier1 batch scheduled", "batch_id", sub.result.BatchID, "schema", sub.schema, "request_count", sub.result.RequestCount)
	return sub.result, nil
}

func buildBatchItems(items []BatchItemInput) ([]t1.BatchItem, error) {
	out := make([]t1.BatchItem, 0, len(items))
	seen := map[string]bool{}
	for i, it := range items {
		id := strings.TrimSpace(it.CustomID)
		switch {
		case id != "":
		case it.EntryID != nil:
			id = EntryCustomID(*it.EntryID)
		default:
			id = "item_" + strconv.Itoa(i)
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: duplicate custom_id %q", pkgerrors.ErrInvalidArgument, id)
		}
		seen[id] = true
		p := BuildPrompt(it.Item)
		out = append(out, t1.BatchItem{
			CustomID:    id,
			Title:       it.Title,
			Author:      it.Author,
			ContentType: it.ContentType,
			PromptMode:  p.Mode,
			Prompt:      p.User,
		})
	}
	return out, nil
}

func (s *Service) submitRemote(ctx context.Context, sub *submission) error {
	reqs := make([]openai.BatchRequest, len(sub.items))
	for i, it := range sub.items {
		reqs[i] = openai.BatchRequest{CustomID: it.CustomID, Model: sub.model, System: SystemPrompt, User: it.Prompt}
	}
	fileID, err := s.api.UploadBatchFile(ctx, fmt.Sprintf("tier1_%d.jsonl", s.now().UnixNano()), reqs)
	if err != nil {
		return err
	}
	remote, err := s.api.CreateBatch(ctx, fileID, remoteMetadata(sub.metadata))
	if err != nil {
		return err
	}
	if remote.InputFileID == "" {
		remote.InputFileID = fileID
	}
	sub.remote = remote
	return nil
}

func parseSubmission(sub *submission) error {
	if strings.TrimSpace(sub.remote.ID) == "" {
		return &openai.BatchAPIError{Op: "batch_create", Message: "response carries no batch id"}
	}
	return nil
}

func (s *Service) writeSubmission(ctx context.Context, sub *submission) error {
	dbc := dbctx.With(ctx)
	inputFileID := sub.remote.InputFileID
	batch := &t1.Batch{
		BatchID:      sub.remote.ID,
		Status:       sub.remote.Status,
		Model:        sub.model,
		InputFileID:  &inputFileID,
		RequestCount: len(sub.items),
		CreatedAt:    s.now(),
	}
	if err := s.store.UpsertBatchRow(dbc, sub.schema, batch, len(sub.items), sub.metadata); err != nil {
		return err
	}
	if err := s.store.UpsertBatchItems(dbc, sub.schema, batch.BatchID, sub.items); err != nil {
		return err
	}
	sub.result = &ScheduleResult{
		BatchID:      batch.BatchID,
		Status:       batch.Status,
		Schema:       sub.schema,
		RequestCount: len(sub.items),
	}
	return nil
}

// remoteMetadata stringifies values; the batch API accepts string values only.
func remoteMetadata(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = fmt.Sprint(v)
	}
	return out
}
