package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/igasovic/PKM-sub000/internal/http/handlers"
	httpMW "github.com/igasovic/PKM-sub000/internal/http/middleware"
	"github.com/igasovic/PKM-sub000/internal/observability"
	"github.com/igasovic/PKM-sub000/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	Metrics        *observability.Metrics
	AllowedOrigins []string
	ServiceName    string

	CaptureHandler  *httpH.CaptureHandler
	Tier1Handler    *httpH.Tier1Handler
	TestModeHandler *httpH.TestModeHandler
	HealthHandler   *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = observability.DefaultServiceName
	}

	// JSON bodies are strict: unknown fields are a 400.
	binding.EnableDecoderDisallowUnknownFields = true

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.AllowedOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")
	{
		// Write path
		if cfg.CaptureHandler != nil {
			api.POST("/captures", cfg.CaptureHandler.Capture)
			api.POST("/entries", cfg.CaptureHandler.InsertEntry)
			api.PATCH("/entries/:entry_id", cfg.CaptureHandler.UpdateEntry)
		}

		// Tier-1 enrichment
		if cfg.Tier1Handler != nil {
			api.POST("/tier1/enrich", cfg.Tier1Handler.Enrich)
			api.POST("/tier1/batches", cfg.Tier1Handler.EnqueueBatch)
			api.GET("/tier1/batches", cfg.Tier1Handler.ListBatches)
			api.GET("/tier1/batches/:batch_id", cfg.Tier1Handler.GetBatch)
			api.POST("/tier1/batches/:batch_id/collect", cfg.Tier1Handler.CollectBatch)
			api.POST("/tier1/sweep", cfg.Tier1Handler.Sweep)
		}

		// Runtime config
		if cfg.TestModeHandler != nil {
			api.GET("/config/test-mode", cfg.TestModeHandler.Get)
			api.PUT("/config/test-mode", cfg.TestModeHandler.Set)
			api.POST("/config/test-mode/toggle", cfg.TestModeHandler.Toggle)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"message": "route not found", "code": "not_found"}})
	})
	return r
}
