package app

import (
	"reflect"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/igasovic/PKM-sub000/internal/jobs/worker"
)

func newTestViper(overrides map[string]any) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	for k, val := range overrides {
		v.Set(k, val)
	}
	return v
}

func TestConfigDefaults(t *testing.T) {
	cfg := configFrom(newTestViper(nil), nil)

	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.SchemaProd != "pkm" || cfg.SchemaTest != "pkm_test" {
		t.Fatalf("schemas = %q/%q", cfg.SchemaProd, cfg.SchemaTest)
	}
	if !cfg.AutoMigrate || !cfg.WorkerEnabled {
		t.Fatalf("expected auto-migrate and worker on by default")
	}
	if cfg.Tier1Model != "gpt-4o-mini" || cfg.Tier1BatchModel != "gpt-4o-mini" {
		t.Fatalf("models = %q/%q", cfg.Tier1Model, cfg.Tier1BatchModel)
	}
	if cfg.Tier1Timeout != 60*time.Second {
		t.Fatalf("Tier1Timeout = %s", cfg.Tier1Timeout)
	}
	if cfg.WorkerInterval != worker.DefaultInterval || cfg.WorkerLimit != worker.DefaultLimit {
		t.Fatalf("worker = %s/%d", cfg.WorkerInterval, cfg.WorkerLimit)
	}
	if cfg.Tier1AutoRetryMaxDepth != 1 {
		t.Fatalf("AutoRetryMaxDepth = %d", cfg.Tier1AutoRetryMaxDepth)
	}
	if cfg.QualityMinWords != 30 || cfg.QualityExcerptChars != 320 {
		t.Fatalf("quality = %d/%d", cfg.QualityMinWords, cfg.QualityExcerptChars)
	}
	if cfg.RedisAddr != "" || cfg.AllowedOrigins != nil {
		t.Fatalf("expected no redis and default origins, got %q %v", cfg.RedisAddr, cfg.AllowedOrigins)
	}
}

func TestConfigBounds(t *testing.T) {
	tests := []struct {
		name  string
		over  map[string]any
		check func(t *testing.T, cfg Config)
	}{
		{
			name: "timeout floor",
			over: map[string]any{"TIER1_TIMEOUT_MS": 10},
			check: func(t *testing.T, cfg Config) {
				if cfg.Tier1Timeout != time.Second {
					t.Fatalf("Tier1Timeout = %s", cfg.Tier1Timeout)
				}
			},
		},
		{
			name: "interval floor",
			over: map[string]any{"TIER1_WORKER_INTERVAL_MS": 100},
			check: func(t *testing.T, cfg Config) {
				if cfg.WorkerInterval != worker.MinInterval {
					t.Fatalf("WorkerInterval = %s", cfg.WorkerInterval)
				}
			},
		},
		{
			name: "limit ceiling",
			over: map[string]any{"TIER1_WORKER_LIMIT": 5000},
			check: func(t *testing.T, cfg Config) {
				if cfg.WorkerLimit != worker.MaxLimit {
					t.Fatalf("WorkerLimit = %d", cfg.WorkerLimit)
				}
			},
		},
		{
			name: "batch model override",
			over: map[string]any{"TIER1_MODEL": "m1", "TIER1_BATCH_MODEL": "m2"},
			check: func(t *testing.T, cfg Config) {
				if cfg.Tier1Model != "m1" || cfg.Tier1BatchModel != "m2" {
					t.Fatalf("models = %q/%q", cfg.Tier1Model, cfg.Tier1BatchModel)
				}
			},
		},
		{
			name: "negative retry depth",
			over: map[string]any{"TIER1_AUTO_RETRY_MAX_DEPTH": -3},
			check: func(t *testing.T, cfg Config) {
				if cfg.Tier1AutoRetryMaxDepth != 1 {
					t.Fatalf("AutoRetryMaxDepth = %d", cfg.Tier1AutoRetryMaxDepth)
				}
			},
		},
		{
			name: "zero retry depth keeps one retry",
			over: map[string]any{"TIER1_AUTO_RETRY_MAX_DEPTH": 0},
			check: func(t *testing.T, cfg Config) {
				if cfg.Tier1AutoRetryMaxDepth != 1 {
					t.Fatalf("AutoRetryMaxDepth = %d", cfg.Tier1AutoRetryMaxDepth)
				}
			},
		},
		{
			name: "deeper retry chain",
			over: map[string]any{"TIER1_AUTO_RETRY_MAX_DEPTH": 3},
			check: func(t *testing.T, cfg Config) {
				if cfg.Tier1AutoRetryMaxDepth != 3 {
					t.Fatalf("AutoRetryMaxDepth = %d", cfg.Tier1AutoRetryMaxDepth)
				}
			},
		},
		{
			name: "origins list",
			over: map[string]any{"CORS_ALLOWED_ORIGINS": " http://a , ,http://b"},
			check: func(t *testing.T, cfg Config) {
				if !reflect.DeepEqual(cfg.AllowedOrigins, []string{"http://a", "http://b"}) {
					t.Fatalf("AllowedOrigins = %v", cfg.AllowedOrigins)
				}
			},
		},
		{
			name: "otel headers",
			over: map[string]any{"OTEL_ENABLED": "true", "OTEL_EXPORTER_OTLP_HEADERS": "a=1, bad ,b = 2,c="},
			check: func(t *testing.T, cfg Config) {
				if !cfg.Otel.Enabled {
					t.Fatalf("expected otel enabled")
				}
				if !reflect.DeepEqual(cfg.Otel.Headers, map[string]string{"a": "1", "b": "2"}) {
					t.Fatalf("Headers = %v", cfg.Otel.Headers)
				}
				if cfg.Otel.SampleRatio != 0.1 {
					t.Fatalf("SampleRatio = %v", cfg.Otel.SampleRatio)
				}
			},
		},
		{
			name: "dsn wins",
			over: map[string]any{"POSTGRES_DSN": "postgres://x@y/z"},
			check: func(t *testing.T, cfg Config) {
				if cfg.Postgres.ConnString() != "postgres://x@y/z" {
					t.Fatalf("ConnString = %q", cfg.Postgres.ConnString())
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, configFrom(newTestViper(tt.over), nil))
		})
	}
}
