package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/igasovic/PKM-sub000/internal/platform/logger"
)

type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	llmRequests *prometheus.CounterVec
	llmLatency  *prometheus.HistogramVec

	captures     *prometheus.CounterVec
	stageLatency *prometheus.HistogramVec
	batchResults *prometheus.CounterVec
	autoRetries  *prometheus.CounterVec

	sweepRuns     *prometheus.CounterVec
	sweepDuration prometheus.Histogram
	sweepBatches  *prometheus.CounterVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

// Current returns the process metrics, or nil before Init. Every Observe*
// method is nil-safe.
func Current() *Metrics {
	return instance
}

func Init(log *logger.Logger) *Metrics {
	initOnce.Do(func() {
		instance = newMetrics()
		if log != nil {
			log.Info("metrics initialized")
		}
	})
	return instance
}

func newMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pkm_api_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pkm_api_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pkm_api_inflight_requests",
			Help: "HTTP requests currently being served.",
		}),
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pkm_llm_requests_total",
			Help: "Upstream LLM API calls by operation and outcome.",
		}, []string{"op", "status"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pkm_llm_request_duration_seconds",
			Help:    "Upstream LLM API latency.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"op"}),
		captures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pkm_captures_total",
			Help: "Entry writes by resolution action and schema.",
		}, []string{"action", "schema"}),
		stageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pkm_tier1_stage_duration_seconds",
			Help:    "Tier-1 pipeline stage latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"flow", "stage", "status"}),
		batchResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pkm_tier1_batch_results_total",
			Help: "Collected Tier-1 item results by status.",
		}, []string{"status"}),
		autoRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pkm_tier1_auto_retries_total",
			Help: "Auto-retry spawns for failed batches.",
		}, []string{"outcome"}),
		sweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pkm_tier1_sweeps_total",
			Help: "Tier-1 worker sweep cycles by outcome.",
		}, []string{"outcome"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pkm_tier1_sweep_duration_seconds",
			Help:    "Tier-1 worker sweep duration.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}),
		sweepBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pkm_tier1_sweep_batches_total",
			Help: "Batches visited by the Tier-1 worker.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.llmRequests, m.llmLatency,
		m.captures, m.stageLatency, m.batchResults, m.autoRetries,
		m.sweepRuns, m.sweepDuration, m.sweepBatches,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route).Observe(dur.Seconds())
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveLLMRequest(op, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.llmRequests.WithLabelValues(op, status).Inc()
	m.llmLatency.WithLabelValues(op).Observe(dur.Seconds())
}

func (m *Metrics) IncCapture(action, schema string) {
	if m == nil {
		return
	}
	m.captures.WithLabelValues(action, schema).Inc()
}

func (m *Metrics) ObserveTier1Stage(flow, stage, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.stageLatency.WithLabelValues(flow, stage, status).Observe(dur.Seconds())
}

func (m *Metrics) AddBatchResults(status string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.batchResults.WithLabelValues(status).Add(float64(n))
}

func (m *Metrics) IncAutoRetry(outcome string) {
	if m == nil {
		return
	}
	m.autoRetries.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveSweep(outcome string, dur time.Duration, collected, failed int) {
	if m == nil {
		return
	}
	m.sweepRuns.WithLabelValues(outcome).Inc()
	m.sweepDuration.Observe(dur.Seconds())
	if collected > 0 {
		m.sweepBatches.WithLabelValues("collected").Add(float64(collected))
	}
	if failed > 0 {
		m.sweepBatches.WithLabelValues("error").Add(float64(failed))
	}
}
