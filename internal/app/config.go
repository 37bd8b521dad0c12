package app

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/igasovic/PKM-sub000/internal/data/db"
	"github.com/igasovic/PKM-sub000/internal/jobs/worker"
	"github.com/igasovic/PKM-sub000/internal/modules/schemarouter"
	"github.com/igasovic/PKM-sub000/internal/modules/tier1"
	"github.com/igasovic/PKM-sub000/internal/observability"
	"github.com/igasovic/PKM-sub000/internal/platform/logger"
)

const minTier1Timeout = time.Second

type Config struct {
	LogMode  string
	HTTPAddr string

	Postgres    db.Config
	SchemaProd  string
	SchemaTest  string
	AutoMigrate bool

	OpenAIAPIKey  string
	OpenAIBaseURL string

	Tier1Model             string
	Tier1BatchModel        string
	Tier1Timeout           time.Duration
	Tier1AutoRetryMaxDepth int

	WorkerEnabled  bool
	WorkerInterval time.Duration
	WorkerLimit    int

	QualityMinWords     int
	QualityExcerptChars int

	RedisAddr      string
	AllowedOrigins []string

	MetricsEnabled bool
	Otel           observability.OtelConfig
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LOG_MODE", "development")
	v.SetDefault("HTTP_ADDR", ":8080")

	v.SetDefault("POSTGRES_HOST", "localhost")
	v.SetDefault("POSTGRES_PORT", "5432")
	v.SetDefault("POSTGRES_USER", "postgres")
	v.SetDefault("POSTGRES_NAME", "pkm")
	v.SetDefault("POSTGRES_MAX_OPEN_CONNS", 10)
	v.SetDefault("POSTGRES_MAX_IDLE_CONNS", 5)

	v.SetDefault("PKM_SCHEMA_PROD", schemarouter.DefaultProdSchema)
	v.SetDefault("PKM_SCHEMA_TEST", schemarouter.DefaultTestSchema)
	v.SetDefault("PKM_AUTO_MIGRATE", true)

	v.SetDefault("TIER1_MODEL", tier1.DefaultModel)
	v.SetDefault("TIER1_TIMEOUT_MS", 60000)
	v.SetDefault("TIER1_AUTO_RETRY_MAX_DEPTH", tier1.DefaultAutoRetryMaxDepth)

	v.SetDefault("TIER1_WORKER_ENABLED", true)
	v.SetDefault("TIER1_WORKER_INTERVAL_MS", int(worker.DefaultInterval/time.Millisecond))
	v.SetDefault("TIER1_WORKER_LIMIT", worker.DefaultLimit)

	v.SetDefault("QUALITY_MIN_WORDS", 30)
	v.SetDefault("QUALITY_EXCERPT_CHARS", 320)

	v.SetDefault("METRICS_ENABLED", false)
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_SERVICE_NAME", observability.DefaultServiceName)
	v.SetDefault("OTEL_SAMPLER_RATIO", observability.DefaultSampleRatio)
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_VERSION", "dev")
}

// LoadConfig reads the process environment.
func LoadConfig(log *logger.Logger) Config {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	return configFrom(v, log)
}

func configFrom(v *viper.Viper, log *logger.Logger) Config {
	cfg := Config{
		LogMode:  strings.TrimSpace(v.GetString("LOG_MODE")),
		HTTPAddr: strings.TrimSpace(v.GetString("HTTP_ADDR")),
		Postgres: db.Config{
			DSN:          strings.TrimSpace(v.GetString("POSTGRES_DSN")),
			Host:         v.GetString("POSTGRES_HOST"),
			Port:         v.GetString("POSTGRES_PORT"),
			User:         v.GetString("POSTGRES_USER"),
			Password:     v.GetString("POSTGRES_PASSWORD"),
			Name:         v.GetString("POSTGRES_NAME"),
			MaxOpenConns: v.GetInt("POSTGRES_MAX_OPEN_CONNS"),
			MaxIdleConns: v.GetInt("POSTGRES_MAX_IDLE_CONNS"),
		},
		SchemaProd:  strings.TrimSpace(v.GetString("PKM_SCHEMA_PROD")),
		SchemaTest:  strings.TrimSpace(v.GetString("PKM_SCHEMA_TEST")),
		AutoMigrate: v.GetBool("PKM_AUTO_MIGRATE"),

		OpenAIAPIKey:  strings.TrimSpace(v.GetString("OPENAI_API_KEY")),
		OpenAIBaseURL: strings.TrimSpace(v.GetString("OPENAI_BASE_URL")),

		Tier1Model:             strings.TrimSpace(v.GetString("TIER1_MODEL")),
		Tier1BatchModel:        strings.TrimSpace(v.GetString("TIER1_BATCH_MODEL")),
		Tier1Timeout:           time.Duration(v.GetInt("TIER1_TIMEOUT_MS")) * time.Millisecond,
		Tier1AutoRetryMaxDepth: v.GetInt("TIER1_AUTO_RETRY_MAX_DEPTH"),

		WorkerEnabled:  v.GetBool("TIER1_WORKER_ENABLED"),
		WorkerInterval: worker.ClampInterval(time.Duration(v.GetInt("TIER1_WORKER_INTERVAL_MS")) * time.Millisecond),
		WorkerLimit:    worker.ClampLimit(v.GetInt("TIER1_WORKER_LIMIT")),

		QualityMinWords:     v.GetInt("QUALITY_MIN_WORDS"),
		QualityExcerptChars: v.GetInt("QUALITY_EXCERPT_CHARS"),

		RedisAddr:      strings.TrimSpace(v.GetString("REDIS_ADDR")),
		AllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),

		MetricsEnabled: v.GetBool("METRICS_ENABLED"),
		Otel: observability.OtelConfig{
			Enabled:     v.GetBool("OTEL_ENABLED"),
			ServiceName: v.GetString("OTEL_SERVICE_NAME"),
			Environment: v.GetString("APP_ENV"),
			Version:     v.GetString("APP_VERSION"),
			Endpoint:    strings.TrimSpace(v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT")),
			Headers:     parseHeaders(v.GetString("OTEL_EXPORTER_OTLP_HEADERS")),
			Insecure:    v.GetBool("OTEL_EXPORTER_OTLP_INSECURE"),
			SampleRatio: v.GetFloat64("OTEL_SAMPLER_RATIO"),
		},
	}
	if cfg.Tier1Timeout < minTier1Timeout {
		cfg.Tier1Timeout = minTier1Timeout
	}
	if cfg.Tier1BatchModel == "" {
		cfg.Tier1BatchModel = cfg.Tier1Model
	}
	if cfg.Tier1AutoRetryMaxDepth < 1 {
		cfg.Tier1AutoRetryMaxDepth = tier1.DefaultAutoRetryMaxDepth
	}
	if log != nil {
		log.Info("Config loaded",
			"http_addr", cfg.HTTPAddr,
			"schema_prod", cfg.SchemaProd,
			"schema_test", cfg.SchemaTest,
			"auto_migrate", cfg.AutoMigrate,
			"tier1_model", cfg.Tier1Model,
			"tier1_batch_model", cfg.Tier1BatchModel,
			"worker_enabled", cfg.WorkerEnabled,
			"worker_interval", cfg.WorkerInterval.String(),
			"worker_limit", cfg.WorkerLimit,
			"redis_lease", cfg.RedisAddr != "",
			"metrics", cfg.MetricsEnabled,
			"otel", cfg.Otel.Enabled,
		)
	}
	return cfg
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseHeaders reads "k1=v1,k2=v2"; malformed pairs are dropped.
func parseHeaders(raw string) map[string]string {
	var out map[string]string
	for _, part := range splitList(raw) {
		k, v, ok := strings.Cut(part, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			continue
		}
		if out == nil {
			out = map[string]string{}
		}
		out[k] = v
	}
	return out
}
