package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/concordia-platform/ai-monitor-go/internal/domain"
	"github.com/concordia-platform/ai-monitor-go/internal/infra/resilience"

	"go.opentelemetry.io/otel/attribute"
)

// alertRow maps the ai_performance_alerts table columns.
type alertRow struct {
	ID        string          `json:"id,omitempty"`
	AlertType string          `json:"alert_type"`
	Severity  string          `json:"severity"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// InsertAlert persists one performance alert record. Write-once: there
// is no update path. Implements port.AlertStore.
func (c *Client) InsertAlert(ctx context.Context, alert *domain.Alert) error {
	ctx, span := tracer.Start(ctx, "Supabase.InsertAlert")
	defer span.End()
	span.SetAttributes(
		attribute.String("alert.type", alert.AlertType),
		attribute.String("alert.severity", string(alert.Severity)),
	)

	row := alertRow{
		ID:        alert.ID,
		AlertType: alert.AlertType,
		Severity:  string(alert.Severity),
		CreatedAt: alert.CreatedAt,
	}
	if len(alert.Details) > 0 {
		b, err := json.Marshal(alert.Details)
		if err != nil {
			return fmt.Errorf("encode alert details: %w", err)
		}
		row.Details = b
	}
	body, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}

	_, err = c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			_, reqErr := c.doRequest(ctx, http.MethodPost, "ai_performance_alerts", body)
			return reqErr
		})
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "supabase/ai_performance_alerts", Err: err}
	}
	return nil
}
