package handler

import (
	"net/http"
	"time"

	"github.com/concordia-platform/ai-monitor-go/internal/domain"
	"github.com/concordia-platform/ai-monitor-go/internal/health"
	"github.com/concordia-platform/ai-monitor-go/internal/infra/observability"
	"github.com/concordia-platform/ai-monitor-go/internal/monitor"
	"github.com/concordia-platform/ai-monitor-go/internal/port"
	"github.com/concordia-platform/ai-monitor-go/internal/ratelimit"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Tiers bundles the admission policies the router applies.
type Tiers struct {
	General ratelimit.Tier
	Auth    ratelimit.Tier
	AI      ratelimit.Tier
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(
	tracker *monitor.Tracker,
	aggregator *monitor.Aggregator,
	agent port.AgentCaller,
	limiter *ratelimit.Limiter,
	tiers Tiers,
	healthAgg *health.Aggregator,
	metrics *observability.Metrics,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger, metrics))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/health", healthHandler(healthAgg))
	r.Get("/health/ready", readyHandler(healthAgg))
	r.Get("/health/live", liveHandler(healthAgg))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Use(limiter.Middleware(tiers.General))

		// Instrumented AI call; the AI tier protects the expensive
		// upstream.
		r.With(limiter.Middleware(tiers.AI)).
			Post("/ai/{serviceType}", aiRequestHandler(tracker, agent, logger))

		// Authoritative store-backed reporting.
		r.Get("/metrics/summary", summaryHandler(aggregator, logger))
		// Cheap dashboard polling from the rolling cache.
		r.Get("/metrics/rolling/{serviceType}", rollingHandler(aggregator, logger))
		// Prometheus counter snapshot as JSON.
		r.Get("/metrics/monitor", monitorSnapshotHandler(metrics))
		// Tracker introspection.
		r.Get("/requests/active", activeRequestsHandler(tracker))
	})

	return r
}

// ============================================================
// Health
// ============================================================

func healthHandler(healthAgg *health.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		detailed := r.URL.Query().Get("detailed") == "true"
		snapshot := healthAgg.Snapshot(r.Context(), detailed)

		status := http.StatusOK
		if snapshot.Status != domain.HealthHealthy {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, snapshot)
	}
}

func readyHandler(healthAgg *health.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !healthAgg.Ready(r.Context()) {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// liveHandler asserts only that the process responds. It checks no
// dependencies, so a dependency outage cannot look like a dead process.
func liveHandler(healthAgg *health.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "alive",
			"uptime": healthAgg.Uptime().Seconds(),
		})
	}
}

// ============================================================
// Metrics & introspection
// ============================================================

func summaryHandler(aggregator *monitor.Aggregator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/metrics/summary")
		defer span.End()

		filter := domain.SummaryFilter{
			Jurisdiction: r.URL.Query().Get("jurisdiction"),
		}

		if st := r.URL.Query().Get("serviceType"); st != "" {
			serviceType := domain.ServiceType(st)
			if !serviceType.Valid() {
				writeError(w, http.StatusBadRequest, "unknown serviceType: "+st)
				return
			}
			filter.ServiceType = serviceType
		}

		timeframe := 24 * time.Hour
		if tf := r.URL.Query().Get("timeframe"); tf != "" {
			d, err := time.ParseDuration(tf)
			if err != nil || d <= 0 {
				writeError(w, http.StatusBadRequest, "invalid timeframe: "+tf)
				return
			}
			timeframe = d
		}
		filter.Since = time.Now().Add(-timeframe)

		summary, err := aggregator.GetSummary(ctx, filter)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

func rollingHandler(aggregator *monitor.Aggregator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serviceType := domain.ServiceType(chi.URLParam(r, "serviceType"))
		if !serviceType.Valid() {
			writeError(w, http.StatusBadRequest, "unknown serviceType: "+string(serviceType))
			return
		}

		agg, ok := aggregator.GetRolling(serviceType)
		if !ok {
			writeError(w, http.StatusNotFound, "no rolling aggregate for "+string(serviceType))
			return
		}
		writeJSON(w, http.StatusOK, agg)
	}
}

func monitorSnapshotHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetMonitorSnapshot())
	}
}

func activeRequestsHandler(tracker *monitor.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		byService := tracker.ActiveCountByService()
		out := make(map[string]int, len(byService))
		for st, n := range byService {
			out[string(st)] = n
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"activeCount": tracker.ActiveCount(),
			"byService":   out,
		})
	}
}
