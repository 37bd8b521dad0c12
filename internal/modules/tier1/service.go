package tier1

import (
	"context"
	"time"

	"github.com/igasovic/PKM-sub000/internal/data/repos/tier1repo"
	"github.com/igasovic/PKM-sub000/internal/modules/quality"
	"github.com/igasovic/PKM-sub000/internal/pkg/dbctx"
	"github.com/igasovic/PKM-sub000/internal/platform/logger"
	"github.com/igasovic/PKM-sub000/internal/platform/openai"
)

const (
	DefaultModel             = "gpt-4o-mini"
	DefaultAutoRetryMaxDepth = 1
)

type Config struct {
	Model      string
	BatchModel string
	// A failed batch spawns a retry only while its own retry depth is
	// below AutoRetryMaxDepth. Zero or less means DefaultAutoRetryMaxDepth.
	AutoRetryMaxDepth int
}

// SchemaResolver picks the schema newly scheduled batches are written to.
type SchemaResolver interface {
	ActiveSchema(ctx context.Context) (string, error)
}

// EntryWriter receives the classification of collected items.
type EntryWriter interface {
	UpdateByEntryID(dbc dbctx.Context, schema string, entryID int64, updates map[string]interface{}) (bool, error)
}

// Service runs the sync, schedule, and collect flows.
type Service struct {
	log     *logger.Logger
	cfg     Config
	api     openai.Client
	store   tier1repo.BatchStore
	entries EntryWriter
	router  SchemaResolver
	scorer  quality.Scorer
	pipe    pipeline
	now     func() time.Time
}

func NewService(cfg Config, api openai.Client, store tier1repo.BatchStore, entries EntryWriter, router SchemaResolver, scorer quality.Scorer, baseLog *logger.Logger) *Service {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BatchModel == "" {
		cfg.BatchModel = cfg.Model
	}
	if cfg.AutoRetryMaxDepth <= 0 {
		cfg.AutoRetryMaxDepth = DefaultAutoRetryMaxDepth
	}
	log := baseLog.With("service", "Tier1Service")
	return &Service{
		log:     log,
		cfg:     cfg,
		api:     api,
		store:   store,
		entries: entries,
		router:  router,
		scorer:  scorer,
		pipe:    pipeline{log: log},
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// PendingBatches lists non-terminal batches across every configured schema.
func (s *Service) PendingBatches(ctx context.Context, limit int) ([]tier1repo.PendingBatch, error) {
	return s.store.ListPendingBatchIDs(dbctx.With(ctx), limit)
}
