package tier1

import (
	"context"
	"fmt"
	"strings"

	"github.com/igasovic/PKM-sub000/internal/data/repos/tier1repo"
	t1 "github.com/igasovic/PKM-sub000/internal/domain/tier1"
	"github.com/igasovic/PKM-sub000/internal/pkg/dbctx"
	pkgerrors "github.com/igasovic/PKM-sub000/internal/pkg/errors"
)

type StatusOptions struct {
	Schema          string `form:"schema" json:"schema,omitempty"`
	Limit           int    `form:"limit" json:"limit,omitempty"`
	IncludeTerminal bool   `form:"include_terminal" json:"include_terminal,omitempty"`
}

type StatusList struct {
	Summary t1.StatusSummary `json:"summary"`
	Jobs    []t1.JobStatus   `json:"jobs"`
}

func (s *Service) checkSchema(schema string) error {
	if schema == "" {
		return nil
	}
	for _, known := range s.store.Schemas() {
		if known == schema {
			return nil
		}
	}
	return fmt.Errorf("%w: unknown schema %q", pkgerrors.ErrInvalidArgument, schema)
}

// ListBatchStatuses returns batches newest first with per-item counts and an
// aggregate summary.
func (s *Service) ListBatchStatuses(ctx context.Context, opts StatusOptions) (*StatusList, error) {
	schema := strings.TrimSpace(opts.Schema)
	if err := s.checkSchema(schema); err != nil {
		return nil, err
	}
	jobs, err := s.store.ListBatchStatuses(dbctx.With(ctx), tier1repo.StatusQuery{
		Schema:          schema,
		Limit:           opts.Limit,
		IncludeTerminal: opts.IncludeTerminal,
	})
	if err != nil {
		return nil, err
	}
	if jobs == nil {
		jobs = []t1.JobStatus{}
	}
	return &StatusList{Summary: t1.Summarize(jobs), Jobs: jobs}, nil
}

// GetBatchStatus returns nil when the batch is unknown.
func (s *Service) GetBatchStatus(ctx context.Context, batchID, schema string) (*t1.JobStatus, error) {
	batchID = strings.TrimSpace(batchID)
	if batchID == "" {
		return nil, fmt.Errorf("%w: batch_id is required", pkgerrors.ErrInvalidArgument)
	}
	schema = strings.TrimSpace(schema)
	if err := s.checkSchema(schema); err != nil {
		return nil, err
	}
	return s.store.GetBatchStatus(dbctx.With(ctx), batchID, schema)
}
