package domain

import "time"

// ServiceType identifies which AI capability a request exercised.
type ServiceType string

const (
	ServiceGuidance           ServiceType = "guidance"
	ServiceMediation          ServiceType = "mediation"
	ServiceCulturalAdaptation ServiceType = "cultural-adaptation"
	ServiceTranslation        ServiceType = "translation"
)

// Valid reports whether the service type is one of the known capabilities.
func (s ServiceType) Valid() bool {
	switch s {
	case ServiceGuidance, ServiceMediation, ServiceCulturalAdaptation, ServiceTranslation:
		return true
	}
	return false
}

// RequestStatus is the lifecycle state of a tracked AI request.
type RequestStatus string

const (
	StatusPending RequestStatus = "pending"
	StatusSuccess RequestStatus = "success"
	StatusError   RequestStatus = "error"
	StatusTimeout RequestStatus = "timeout"
)

// Terminal reports whether the status ends the request lifecycle.
func (s RequestStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusError || s == StatusTimeout
}

// TokenUsage counts tokens consumed by one upstream AI call.
type TokenUsage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// RequestMetric is the bookkeeping record for a single AI call.
// It is created pending by the tracker, transitions exactly once to a
// terminal status, and is never mutated afterwards.
type RequestMetric struct {
	RequestID    string         `json:"requestId"`
	ServiceType  ServiceType    `json:"serviceType"`
	Jurisdiction string         `json:"jurisdiction"`
	StartTime    time.Time      `json:"startTime"`
	EndTime      *time.Time     `json:"endTime,omitempty"`
	Duration     time.Duration  `json:"-"`
	Status       RequestStatus  `json:"status"`
	Accuracy     *float64       `json:"accuracy,omitempty"`
	Confidence   *float64       `json:"confidence,omitempty"`
	TokenUsage   *TokenUsage    `json:"tokenUsage,omitempty"`
	ErrorDetails string         `json:"errorDetails,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// DurationMs returns the request duration in milliseconds, the unit used
// by the durable store and the summary API.
func (m *RequestMetric) DurationMs() int64 {
	return m.Duration.Milliseconds()
}

// RollingAggregate is the cache-resident per-service-type summary,
// updated incrementally on every completion. It is best effort: the
// cache TTL expires it and it is rebuilt from scratch afterwards. The
// durable store remains the source of truth.
type RollingAggregate struct {
	ServiceType         ServiceType `json:"serviceType"`
	TotalRequests       int64       `json:"totalRequests"`
	SuccessfulRequests  int64       `json:"successfulRequests"`
	AverageResponseTime float64     `json:"averageResponseTimeMs"`
	AverageAccuracy     float64     `json:"averageAccuracy"`
	LastUpdated         time.Time   `json:"lastUpdated"`
}
