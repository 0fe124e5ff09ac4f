package monitor

import (
	"context"
	"time"

	"github.com/concordia-platform/ai-monitor-go/internal/domain"
	"github.com/concordia-platform/ai-monitor-go/internal/infra/observability"
	"github.com/concordia-platform/ai-monitor-go/internal/port"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Thresholds are the static limits the alert rule table evaluates
// every completed metric against.
type Thresholds struct {
	ResponseTimeWarning  time.Duration
	ResponseTimeCritical time.Duration
	AccuracyWarning      float64
	AccuracyCritical     float64
}

// DefaultThresholds returns the production rule-table limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ResponseTimeWarning:  10 * time.Second,
		ResponseTimeCritical: 30 * time.Second,
		AccuracyWarning:      0.7,
		AccuracyCritical:     0.5,
	}
}

// AlertEngine evaluates completed metrics against static thresholds.
// Stateless per metric: no cross-request correlation and no suppression
// window, so a sustained degradation emits one alert per request.
type AlertEngine struct {
	store      port.AlertStore
	thresholds Thresholds
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// NewAlertEngine creates an alert engine with the given thresholds.
func NewAlertEngine(store port.AlertStore, thresholds Thresholds, metrics *observability.Metrics, logger *zap.Logger) *AlertEngine {
	return &AlertEngine{
		store:      store,
		thresholds: thresholds,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// Evaluate runs the rule table against one completed metric. Multiple
// rules may fire; each produces an independent persisted alert record.
// A critical threshold suppresses its matching warning. Persistence
// failures are logged and swallowed; they never reach the caller.
func (e *AlertEngine) Evaluate(ctx context.Context, metric *domain.RequestMetric) []domain.Alert {
	var alerts []domain.Alert

	base := map[string]any{
		"requestId":    metric.RequestID,
		"serviceType":  string(metric.ServiceType),
		"jurisdiction": metric.Jurisdiction,
	}

	if metric.Duration > e.thresholds.ResponseTimeCritical {
		alerts = append(alerts, e.newAlert(domain.AlertResponseTimeCritical, domain.SeverityCritical, base, map[string]any{
			"durationMs":  metric.DurationMs(),
			"thresholdMs": e.thresholds.ResponseTimeCritical.Milliseconds(),
		}))
	} else if metric.Duration > e.thresholds.ResponseTimeWarning {
		alerts = append(alerts, e.newAlert(domain.AlertResponseTimeWarning, domain.SeverityWarning, base, map[string]any{
			"durationMs":  metric.DurationMs(),
			"thresholdMs": e.thresholds.ResponseTimeWarning.Milliseconds(),
		}))
	}

	if metric.Accuracy != nil {
		switch {
		case *metric.Accuracy < e.thresholds.AccuracyCritical:
			alerts = append(alerts, e.newAlert(domain.AlertAccuracyCritical, domain.SeverityCritical, base, map[string]any{
				"accuracy":  *metric.Accuracy,
				"threshold": e.thresholds.AccuracyCritical,
			}))
		case *metric.Accuracy < e.thresholds.AccuracyWarning:
			alerts = append(alerts, e.newAlert(domain.AlertAccuracyWarning, domain.SeverityWarning, base, map[string]any{
				"accuracy":  *metric.Accuracy,
				"threshold": e.thresholds.AccuracyWarning,
			}))
		}
	}

	if metric.Status == domain.StatusError || metric.Status == domain.StatusTimeout {
		alerts = append(alerts, e.newAlert(domain.AlertRequestFailed, domain.SeverityWarning, base, map[string]any{
			"status":       string(metric.Status),
			"errorDetails": metric.ErrorDetails,
		}))
	}

	for i := range alerts {
		alert := &alerts[i]
		e.metrics.IncrAlert(alert.AlertType, alert.Severity)
		if err := e.store.InsertAlert(ctx, alert); err != nil {
			e.logger.Error("alerts: failed to persist alert",
				zap.String("alert_type", alert.AlertType),
				zap.String("request_id", metric.RequestID),
				zap.Error(err),
			)
			e.metrics.IncrExternalError("alert_store")
			continue
		}
		e.logger.Warn("alerts: performance alert emitted",
			zap.String("alert_type", alert.AlertType),
			zap.String("severity", string(alert.Severity)),
			zap.String("request_id", metric.RequestID),
		)
	}

	return alerts
}

func (e *AlertEngine) newAlert(alertType string, severity domain.AlertSeverity, base, extra map[string]any) domain.Alert {
	details := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		details[k] = v
	}
	for k, v := range extra {
		details[k] = v
	}
	return domain.Alert{
		ID:        uuid.NewString(),
		AlertType: alertType,
		Severity:  severity,
		Details:   details,
		CreatedAt: e.now(),
	}
}
