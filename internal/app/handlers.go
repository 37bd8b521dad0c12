package app

import (
	"context"

	"gorm.io/gorm"

	pkmhttp "github.com/igasovic/PKM-sub000/internal/http"
	httpH "github.com/igasovic/PKM-sub000/internal/http/handlers"
	"github.com/igasovic/PKM-sub000/internal/observability"
	"github.com/igasovic/PKM-sub000/internal/platform/logger"
)

type Handlers struct {
	Health   *httpH.HealthHandler
	Capture  *httpH.CaptureHandler
	Tier1    *httpH.Tier1Handler
	TestMode *httpH.TestModeHandler
}

func wireHandlers(log *logger.Logger, db *gorm.DB, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:   httpH.NewHealthHandler(pingDB(db)),
		Capture:  httpH.NewCaptureHandler(services.Capture),
		Tier1:    tier1Handler(services),
		TestMode: httpH.NewTestModeHandler(services.SchemaRouter),
	}
}

// tier1Handler keeps nil services out of the handler's interfaces.
func tier1Handler(services Services) *httpH.Tier1Handler {
	if services.Tier1 == nil {
		return httpH.NewTier1Handler(nil, nil)
	}
	var sweeper httpH.Sweeper
	if services.Tier1Worker != nil {
		sweeper = services.Tier1Worker
	}
	return httpH.NewTier1Handler(services.Tier1, sweeper)
}

func wireServer(log *logger.Logger, cfg Config, handlers Handlers) *pkmhttp.Server {
	log.Info("Wiring router...")
	return pkmhttp.NewServer(pkmhttp.RouterConfig{
		Log:             log,
		Metrics:         observability.Current(),
		AllowedOrigins:  cfg.AllowedOrigins,
		ServiceName:     cfg.Otel.ServiceName,
		CaptureHandler:  handlers.Capture,
		Tier1Handler:    handlers.Tier1,
		TestModeHandler: handlers.TestMode,
		HealthHandler:   handlers.Health,
	})
}

func pingDB(db *gorm.DB) httpH.Pinger {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}
