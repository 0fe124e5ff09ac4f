package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/concordia-platform/ai-monitor-go/internal/domain"
	"github.com/concordia-platform/ai-monitor-go/internal/infra/resilience"

	"go.opentelemetry.io/otel/attribute"
)

// requestLogRow maps the ai_request_logs table columns.
type requestLogRow struct {
	RequestID    string          `json:"request_id"`
	ServiceType  string          `json:"service_type"`
	Jurisdiction string          `json:"jurisdiction"`
	StartTime    time.Time       `json:"start_time"`
	EndTime      *time.Time      `json:"end_time,omitempty"`
	DurationMs   int64           `json:"duration_ms"`
	Status       string          `json:"status"`
	Accuracy     *float64        `json:"accuracy,omitempty"`
	Confidence   *float64        `json:"confidence,omitempty"`
	TokenUsage   json.RawMessage `json:"token_usage,omitempty"`
	ErrorDetails string          `json:"error_details,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
}

func rowFromMetric(m *domain.RequestMetric) (*requestLogRow, error) {
	row := &requestLogRow{
		RequestID:    m.RequestID,
		ServiceType:  string(m.ServiceType),
		Jurisdiction: m.Jurisdiction,
		StartTime:    m.StartTime,
		EndTime:      m.EndTime,
		DurationMs:   m.DurationMs(),
		Status:       string(m.Status),
		Accuracy:     m.Accuracy,
		Confidence:   m.Confidence,
		ErrorDetails: m.ErrorDetails,
	}
	if m.TokenUsage != nil {
		b, err := json.Marshal(m.TokenUsage)
		if err != nil {
			return nil, fmt.Errorf("encode token usage: %w", err)
		}
		row.TokenUsage = b
	}
	if len(m.Metadata) > 0 {
		b, err := json.Marshal(m.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode metadata: %w", err)
		}
		row.Metadata = b
	}
	return row, nil
}

func (r *requestLogRow) toMetric() domain.RequestMetric {
	m := domain.RequestMetric{
		RequestID:    r.RequestID,
		ServiceType:  domain.ServiceType(r.ServiceType),
		Jurisdiction: r.Jurisdiction,
		StartTime:    r.StartTime,
		EndTime:      r.EndTime,
		Duration:     time.Duration(r.DurationMs) * time.Millisecond,
		Status:       domain.RequestStatus(r.Status),
		Accuracy:     r.Accuracy,
		Confidence:   r.Confidence,
		ErrorDetails: r.ErrorDetails,
	}
	if len(r.TokenUsage) > 0 {
		var usage domain.TokenUsage
		if err := json.Unmarshal(r.TokenUsage, &usage); err == nil {
			m.TokenUsage = &usage
		}
	}
	if len(r.Metadata) > 0 {
		var meta map[string]any
		if err := json.Unmarshal(r.Metadata, &meta); err == nil {
			m.Metadata = meta
		}
	}
	return m
}

// InsertRequestLog persists a terminal request metric.
// Implements port.RequestLogStore.
func (c *Client) InsertRequestLog(ctx context.Context, metric *domain.RequestMetric) error {
	ctx, span := tracer.Start(ctx, "Supabase.InsertRequestLog")
	defer span.End()
	span.SetAttributes(
		attribute.String("request.id", metric.RequestID),
		attribute.String("request.service_type", string(metric.ServiceType)),
	)

	row, err := rowFromMetric(metric)
	if err != nil {
		return err
	}
	body, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("encode request log: %w", err)
	}

	_, err = c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			_, reqErr := c.doRequest(ctx, http.MethodPost, "ai_request_logs", body)
			return reqErr
		})
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "supabase/ai_request_logs", Err: err}
	}
	return nil
}

// QueryRequestLogs fetches the rows matching the summary filter.
// Implements port.RequestLogStore.
func (c *Client) QueryRequestLogs(ctx context.Context, filter domain.SummaryFilter) ([]domain.RequestMetric, error) {
	ctx, span := tracer.Start(ctx, "Supabase.QueryRequestLogs")
	defer span.End()

	q := url.Values{}
	q.Add("start_time", "gte."+filter.Since.UTC().Format(time.RFC3339))
	if !filter.Until.IsZero() {
		q.Add("start_time", "lte."+filter.Until.UTC().Format(time.RFC3339))
	}
	if filter.ServiceType != "" {
		q.Set("service_type", "eq."+string(filter.ServiceType))
	}
	if filter.Jurisdiction != "" {
		q.Set("jurisdiction", "eq."+filter.Jurisdiction)
	}
	q.Set("order", "start_time.desc")
	path := "ai_request_logs?" + q.Encode()

	var metrics []domain.RequestMetric

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			body, reqErr := c.doRequest(ctx, http.MethodGet, path, nil)
			if reqErr != nil {
				return reqErr
			}

			if body == nil || string(body) == "[]" {
				metrics = []domain.RequestMetric{}
				return nil
			}

			var rows []requestLogRow
			if err := json.Unmarshal(body, &rows); err != nil {
				return fmt.Errorf("failed to decode request logs: %w", err)
			}

			metrics = make([]domain.RequestMetric, 0, len(rows))
			for i := range rows {
				metrics = append(metrics, rows[i].toMetric())
			}
			return nil
		})
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/ai_request_logs", Err: err}
	}

	return metrics, nil
}
