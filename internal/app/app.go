package app

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"gorm.io/gorm"

	pkmdb "github.com/igasovic/PKM-sub000/internal/data/db"
	pkmhttp "github.com/igasovic/PKM-sub000/internal/http"
	"github.com/igasovic/PKM-sub000/internal/observability"
	"github.com/igasovic/PKM-sub000/internal/platform/logger"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Server   *pkmhttp.Server
	Cfg      Config
	Repos    Repos
	Clients  Clients
	Services Services

	pg           *pkmdb.PostgresService
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
	workerOn     bool
	closeOnce    sync.Once
}

// New builds the full HTTP process.
func New() (*App, error) {
	return build(true)
}

// NewHeadless builds repos, clients and services without the HTTP server.
func NewHeadless() (*App, error) {
	return build(false)
}

func build(withHTTP bool) (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	if cfg.MetricsEnabled {
		observability.Init(log)
	}
	otelShutdown := observability.InitOTel(context.Background(), log, cfg.Otel)

	pg, err := pkmdb.NewPostgresService(cfg.Postgres, log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	theDB := pg.DB()

	if cfg.AutoMigrate {
		log.Info("Bootstrapping schemas...", "prod", cfg.SchemaProd, "test", cfg.SchemaTest)
		if err := pkmdb.Bootstrap(theDB, cfg.SchemaProd, []string{cfg.SchemaProd, cfg.SchemaTest}); err != nil {
			_ = pg.Close()
			log.Sync()
			return nil, fmt.Errorf("postgres bootstrap: %w", err)
		}
	}

	reposet, err := wireRepos(theDB, log, cfg)
	if err != nil {
		_ = pg.Close()
		log.Sync()
		return nil, err
	}
	clientset, err := wireClients(log, cfg)
	if err != nil {
		_ = pg.Close()
		log.Sync()
		return nil, err
	}
	serviceset := wireServices(log, cfg, reposet, clientset)

	a := &App{
		Log:          log,
		DB:           theDB,
		Cfg:          cfg,
		Repos:        reposet,
		Clients:      clientset,
		Services:     serviceset,
		pg:           pg,
		otelShutdown: otelShutdown,
	}
	if withHTTP {
		a.Server = wireServer(log, cfg, wireHandlers(log, theDB, serviceset))
	}
	return a, nil
}

// Start launches background work. Safe to call once.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.Cfg.WorkerEnabled && a.Services.Tier1Worker != nil {
		a.Services.Tier1Worker.Start(ctx)
		a.workerOn = true
	} else {
		a.Log.Info("Tier-1 worker disabled")
	}
}

func (a *App) Run() error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Log.Info("Server listening", "addr", a.Cfg.HTTPAddr)
	return a.Server.Run(a.Cfg.HTTPAddr)
}

// Close stops the worker, drains the server and releases connections.
// Calls after the first are no-ops.
func (a *App) Close() {
	if a == nil {
		return
	}
	a.closeOnce.Do(a.close)
}

func (a *App) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.Server != nil {
		if err := a.Server.Shutdown(ctx); err != nil {
			a.Log.Warn("server shutdown failed", "error", err)
		}
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
		if a.workerOn {
			a.Services.Tier1Worker.Wait()
		}
	}
	a.Clients.Close()
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	if a.pg != nil {
		if err := a.pg.Close(); err != nil {
			a.Log.Warn("postgres close failed", "error", err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
