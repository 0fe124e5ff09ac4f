// Package monitor implements the AI-call performance monitor: in-flight
// request tracking, rolling statistics and threshold alerting.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/concordia-platform/ai-monitor-go/internal/domain"
	"github.com/concordia-platform/ai-monitor-go/internal/infra/observability"
	"github.com/concordia-platform/ai-monitor-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("monitor")

// Tracker owns the set of in-flight AI-call records. Completion and the
// stale sweep both claim a record under the same mutex, so exactly one
// of them performs the terminal transition for a given request id.
type Tracker struct {
	mu     sync.Mutex
	active map[string]*domain.RequestMetric

	store      port.RequestLogStore
	aggregator *Aggregator
	alerts     *AlertEngine
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// Completion carries the optional fields reported with a terminal
// transition.
type Completion struct {
	Accuracy     *float64
	Confidence   *float64
	TokenUsage   *domain.TokenUsage
	ErrorDetails string
}

// NewTracker creates a tracker with all collaborators injected.
func NewTracker(
	store port.RequestLogStore,
	aggregator *Aggregator,
	alerts *AlertEngine,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Tracker {
	return &Tracker{
		active:     make(map[string]*domain.RequestMetric),
		store:      store,
		aggregator: aggregator,
		alerts:     alerts,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// StartRequest registers a pending record for requestID. Reusing an
// in-flight id is a caller error; the slot is overwritten, not
// deduplicated.
func (t *Tracker) StartRequest(requestID string, serviceType domain.ServiceType, jurisdiction string, metadata map[string]any) {
	metric := &domain.RequestMetric{
		RequestID:    requestID,
		ServiceType:  serviceType,
		Jurisdiction: jurisdiction,
		StartTime:    t.now(),
		Status:       domain.StatusPending,
		Metadata:     metadata,
	}

	t.mu.Lock()
	if _, exists := t.active[requestID]; exists {
		t.logger.Warn("tracker: overwriting in-flight request id",
			zap.String("request_id", requestID),
		)
	}
	t.active[requestID] = metric
	t.metrics.SetActiveRequests(len(t.active))
	t.mu.Unlock()

	t.logger.Debug("tracker: request started",
		zap.String("request_id", requestID),
		zap.String("service_type", string(serviceType)),
		zap.String("jurisdiction", jurisdiction),
	)
}

// CompleteRequest transitions the record to a terminal status, hands it
// to the aggregator and alert engine, and persists it. Completing an
// unknown or already-completed id is a safe no-op.
func (t *Tracker) CompleteRequest(ctx context.Context, requestID string, status domain.RequestStatus, done Completion) {
	if !status.Terminal() {
		t.logger.Warn("tracker: non-terminal completion status ignored",
			zap.String("request_id", requestID),
			zap.String("status", string(status)),
		)
		return
	}

	metric := t.claim(requestID)
	if metric == nil {
		t.logger.Debug("tracker: completion for unknown or already-completed request",
			zap.String("request_id", requestID),
		)
		return
	}

	t.finalize(ctx, metric, status, done)
}

// CleanupStale force-completes every record older than maxAge with a
// timeout status. It stops accounting for the call only; the outbound
// AI call itself is not cancelled. Returns the number of records swept.
func (t *Tracker) CleanupStale(ctx context.Context, maxAge time.Duration) int {
	cutoff := t.now().Add(-maxAge)

	t.mu.Lock()
	var stale []*domain.RequestMetric
	for id, metric := range t.active {
		if metric.StartTime.Before(cutoff) {
			stale = append(stale, metric)
			delete(t.active, id)
		}
	}
	t.metrics.SetActiveRequests(len(t.active))
	t.mu.Unlock()

	for _, metric := range stale {
		t.logger.Warn("tracker: stale request timed out",
			zap.String("request_id", metric.RequestID),
			zap.String("service_type", string(metric.ServiceType)),
			zap.Time("started_at", metric.StartTime),
		)
		t.finalize(ctx, metric, domain.StatusTimeout, Completion{ErrorDetails: "Request timed out"})
	}

	return len(stale)
}

// ActiveCount returns the number of in-flight requests.
func (t *Tracker) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

// ActiveCountByService returns in-flight request counts per service type.
func (t *Tracker) ActiveCountByService() map[domain.ServiceType]int {
	t.mu.Lock()
	defer t.mu.Unlock()

	counts := make(map[domain.ServiceType]int)
	for _, metric := range t.active {
		counts[metric.ServiceType]++
	}
	return counts
}

// claim removes and returns the active record for requestID, or nil if
// it is absent. Removal under the mutex makes the terminal transition
// exclusive between CompleteRequest and CleanupStale.
func (t *Tracker) claim(requestID string) *domain.RequestMetric {
	t.mu.Lock()
	defer t.mu.Unlock()

	metric, ok := t.active[requestID]
	if !ok {
		return nil
	}
	delete(t.active, requestID)
	t.metrics.SetActiveRequests(len(t.active))
	return metric
}

// finalize is the single terminal-state-transition function, invoked
// from both CompleteRequest and CleanupStale. Persistence is attempted
// first; aggregation and alerting are best-effort side effects. No
// failure here propagates back to the instrumented caller.
func (t *Tracker) finalize(ctx context.Context, metric *domain.RequestMetric, status domain.RequestStatus, done Completion) {
	ctx, span := tracer.Start(ctx, "Tracker.finalize")
	defer span.End()

	end := t.now()
	metric.EndTime = &end
	metric.Duration = end.Sub(metric.StartTime)
	metric.Status = status
	metric.Accuracy = done.Accuracy
	metric.Confidence = done.Confidence
	metric.TokenUsage = done.TokenUsage
	metric.ErrorDetails = done.ErrorDetails

	t.metrics.RecordAIRequest(string(metric.ServiceType), string(status), metric.Duration)
	if metric.Accuracy != nil {
		t.metrics.RecordAccuracy(string(metric.ServiceType), *metric.Accuracy)
	}
	if metric.TokenUsage != nil {
		t.metrics.RecordTokens(metric.TokenUsage.PromptTokens, metric.TokenUsage.CompletionTokens)
	}

	if err := t.store.InsertRequestLog(ctx, metric); err != nil {
		t.logger.Error("tracker: failed to persist request log",
			zap.String("request_id", metric.RequestID),
			zap.Error(err),
		)
		t.metrics.IncrExternalError("request_log_store")
	}

	t.aggregator.UpdateRealTime(metric)
	t.alerts.Evaluate(ctx, metric)

	t.logger.Info("tracker: request completed",
		zap.String("request_id", metric.RequestID),
		zap.String("service_type", string(metric.ServiceType)),
		zap.String("status", string(status)),
		zap.Duration("duration", metric.Duration),
	)
}
