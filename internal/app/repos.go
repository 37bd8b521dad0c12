package app

import (
	"gorm.io/gorm"

	"github.com/igasovic/PKM-sub000/internal/data/repos/entries"
	"github.com/igasovic/PKM-sub000/internal/data/repos/runtimecfg"
	"github.com/igasovic/PKM-sub000/internal/data/repos/tier1repo"
	"github.com/igasovic/PKM-sub000/internal/platform/logger"
)

type Repos struct {
	Entries       entries.EntryRepo
	RuntimeConfig runtimecfg.RuntimeConfigRepo
	Batches       tier1repo.BatchStore
}

// runtime_config lives in the prod schema; batches are scanned prod first.
func wireRepos(db *gorm.DB, log *logger.Logger, cfg Config) (Repos, error) {
	log.Info("Wiring repos...")
	rc, err := runtimecfg.NewRuntimeConfigRepo(db, cfg.SchemaProd, log)
	if err != nil {
		return Repos{}, err
	}
	batches, err := tier1repo.NewBatchStore(db, []string{cfg.SchemaProd, cfg.SchemaTest}, log)
	if err != nil {
		return Repos{}, err
	}
	return Repos{
		Entries:       entries.NewEntryRepo(db, log),
		RuntimeConfig: rc,
		Batches:       batches,
	}, nil
}
