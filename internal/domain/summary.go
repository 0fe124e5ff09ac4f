package domain

import "time"

// SummaryFilter narrows a durable-store summary query. Zero values mean
// "all": an empty service type or jurisdiction matches every row.
type SummaryFilter struct {
	ServiceType  ServiceType
	Jurisdiction string
	Since        time.Time
	Until        time.Time
}

// PerformanceSummary is the authoritative report computed from the
// durable store for one time window (never from the rolling cache).
type PerformanceSummary struct {
	ServiceType        ServiceType `json:"serviceType,omitempty"`
	Jurisdiction       string      `json:"jurisdiction,omitempty"`
	From               time.Time   `json:"from"`
	To                 time.Time   `json:"to"`
	TotalRequests      int64       `json:"totalRequests"`
	SuccessfulRequests int64       `json:"successfulRequests"`
	FailedRequests     int64       `json:"failedRequests"`
	TimedOutRequests   int64       `json:"timedOutRequests"`
	AverageDurationMs  float64     `json:"averageDurationMs"`
	P95DurationMs      int64       `json:"p95DurationMs"`
	AverageAccuracy    *float64    `json:"averageAccuracy,omitempty"`
	AverageConfidence  *float64    `json:"averageConfidence,omitempty"`
	TokenUsage         TokenUsage  `json:"tokenUsage"`
}
