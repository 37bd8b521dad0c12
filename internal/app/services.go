package app

import (
	"github.com/igasovic/PKM-sub000/internal/jobs/worker"
	"github.com/igasovic/PKM-sub000/internal/modules/ingest"
	"github.com/igasovic/PKM-sub000/internal/modules/quality"
	"github.com/igasovic/PKM-sub000/internal/modules/schemarouter"
	"github.com/igasovic/PKM-sub000/internal/modules/tier1"
	"github.com/igasovic/PKM-sub000/internal/platform/logger"
)

// Services holds the wired services. Tier1 and Tier1Worker are nil when no
// OpenAI client is configured.
type Services struct {
	SchemaRouter *schemarouter.Router
	Capture      *ingest.Service
	Tier1        *tier1.Service
	Tier1Worker  *worker.Tier1Worker
}

func wireServices(log *logger.Logger, cfg Config, repos Repos, clients Clients) Services {
	log.Info("Wiring services...")

	router := schemarouter.New(schemarouter.Config{
		SchemaProd: cfg.SchemaProd,
		SchemaTest: cfg.SchemaTest,
	}, repos.RuntimeConfig, log)

	scorer := quality.NewScorer(quality.Config{
		MinWords:     cfg.QualityMinWords,
		ExcerptChars: cfg.QualityExcerptChars,
	})

	resolver := ingest.NewConflictResolver(repos.Entries, log)
	captureSvc := ingest.NewService(router, resolver, scorer, log)

	out := Services{
		SchemaRouter: router,
		Capture:      captureSvc,
	}
	if clients.OpenAI == nil {
		return out
	}

	out.Tier1 = tier1.NewService(tier1.Config{
		Model:             cfg.Tier1Model,
		BatchModel:        cfg.Tier1BatchModel,
		AutoRetryMaxDepth: cfg.Tier1AutoRetryMaxDepth,
	}, clients.OpenAI, repos.Batches, repos.Entries, router, scorer, log)

	out.Tier1Worker = worker.NewTier1Worker(worker.Config{
		Interval: cfg.WorkerInterval,
		Limit:    cfg.WorkerLimit,
	}, out.Tier1, clients.Lease, log)
	return out
}
