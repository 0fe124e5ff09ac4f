package observability

import (
	"time"

	"github.com/concordia-platform/ai-monitor-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the AI monitor.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	aiRequestsTotal     *prometheus.CounterVec
	aiRequestDuration   *prometheus.HistogramVec
	aiAccuracy          *prometheus.HistogramVec
	tokensUsed          *prometheus.CounterVec
	cacheHits           *prometheus.CounterVec
	cacheMisses         *prometheus.CounterVec
	externalErrors      *prometheus.CounterVec
	rateLimitRejections *prometheus.CounterVec
	alertsEmitted       *prometheus.CounterVec
	activeRequests      prometheus.Gauge
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aimon_http_requests_total",
				Help: "Total HTTP requests served, by method, path and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aimon_http_request_duration_seconds",
				Help:    "Duration of HTTP requests by path.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path"},
		),
		aiRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aimon_ai_requests_total",
				Help: "Total tracked AI requests by service type and terminal status.",
			},
			[]string{"service_type", "status"},
		),
		aiRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aimon_ai_request_duration_seconds",
				Help:    "Duration of AI requests by service type.",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
			},
			[]string{"service_type"},
		),
		aiAccuracy: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aimon_ai_accuracy",
				Help:    "Self-reported accuracy of AI responses by service type.",
				Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
			},
			[]string{"service_type"},
		),
		tokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aimon_llm_tokens_total",
				Help: "Total LLM tokens consumed.",
			},
			[]string{"type"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aimon_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aimon_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aimon_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		rateLimitRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aimon_ratelimit_rejections_total",
				Help: "Total requests rejected by the rate limiter, by tier.",
			},
			[]string{"tier"},
		),
		alertsEmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aimon_alerts_emitted_total",
				Help: "Total performance alerts emitted, by type and severity.",
			},
			[]string{"alert_type", "severity"},
		),
		activeRequests: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "aimon_active_ai_requests",
				Help: "Number of AI requests currently in flight.",
			},
		),
	}
}

// RecordHTTPRequest records one served HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, d time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(path).Observe(d.Seconds())
}

// RecordAIRequest records a completed AI request.
func (m *Metrics) RecordAIRequest(serviceType, status string, d time.Duration) {
	m.aiRequestsTotal.WithLabelValues(serviceType, status).Inc()
	m.aiRequestDuration.WithLabelValues(serviceType).Observe(d.Seconds())
}

// RecordAccuracy records a self-reported accuracy score.
func (m *Metrics) RecordAccuracy(serviceType string, accuracy float64) {
	m.aiAccuracy.WithLabelValues(serviceType).Observe(accuracy)
}

// RecordTokens records prompt and completion token usage.
func (m *Metrics) RecordTokens(prompt, completion int) {
	m.tokensUsed.WithLabelValues("prompt").Add(float64(prompt))
	m.tokensUsed.WithLabelValues("completion").Add(float64(completion))
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrRateLimitRejection increments the rejection counter for a tier.
func (m *Metrics) IncrRateLimitRejection(tier string) {
	m.rateLimitRejections.WithLabelValues(tier).Inc()
}

// IncrAlert increments the emitted-alert counter.
func (m *Metrics) IncrAlert(alertType string, severity domain.AlertSeverity) {
	m.alertsEmitted.WithLabelValues(alertType, string(severity)).Inc()
}

// SetActiveRequests records the current in-flight request count.
func (m *Metrics) SetActiveRequests(n int) {
	m.activeRequests.Set(float64(n))
}

// MonitorSnapshot is the JSON view returned by GET /v1/metrics/monitor.
type MonitorSnapshot struct {
	TotalRequests       float64 `json:"totalRequests"`
	ErrorRate           float64 `json:"errorRate"`
	TimeoutRate         float64 `json:"timeoutRate"`
	AvgTokensPerRequest float64 `json:"avgTokensPerRequest"`
	EstimatedCostUsd    float64 `json:"estimatedCostUsd"`
	CacheHitRate        float64 `json:"cacheHitRate"`
	Period              string  `json:"period"`
}

// GetMonitorSnapshot reads the cumulative counter values and derives
// the dashboard snapshot. Prometheus counters expose cumulative values.
func (m *Metrics) GetMonitorSnapshot() *MonitorSnapshot {
	var total, errors, timeouts float64
	for _, st := range []domain.ServiceType{
		domain.ServiceGuidance, domain.ServiceMediation,
		domain.ServiceCulturalAdaptation, domain.ServiceTranslation,
	} {
		for _, status := range []string{"success", "error", "timeout"} {
			v := getCounterValue(m.aiRequestsTotal, string(st), status)
			total += v
			switch status {
			case "error":
				errors += v
			case "timeout":
				timeouts += v
			}
		}
	}

	promptTokens := getCounterValue(m.tokensUsed, "prompt")
	completionTokens := getCounterValue(m.tokensUsed, "completion")
	cacheHits := getCounterValue(m.cacheHits, "aggregates")
	cacheMisses := getCounterValue(m.cacheMisses, "aggregates")

	snap := &MonitorSnapshot{
		TotalRequests: total,
		Period:        "all_time",
	}
	if total > 0 {
		snap.ErrorRate = errors / total
		snap.TimeoutRate = timeouts / total
		snap.AvgTokensPerRequest = (promptTokens + completionTokens) / total
	}
	if cacheHits+cacheMisses > 0 {
		snap.CacheHitRate = cacheHits / (cacheHits + cacheMisses)
	}
	// Estimated cost: ~$0.03/1k prompt tokens, ~$0.06/1k completion tokens
	snap.EstimatedCostUsd = (promptTokens/1000)*0.03 + (completionTokens/1000)*0.06

	return snap
}

// getCounterValue extracts the current float64 value from a CounterVec
// for the given label values.
func getCounterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	counter := cv.WithLabelValues(labels...)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
