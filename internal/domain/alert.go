package domain

import "time"

// AlertSeverity grades how urgent a performance alert is.
type AlertSeverity string

const (
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// Alert types emitted by the threshold rule table.
const (
	AlertResponseTimeWarning  = "AI_RESPONSE_TIME_WARNING"
	AlertResponseTimeCritical = "AI_RESPONSE_TIME_CRITICAL"
	AlertAccuracyWarning      = "AI_ACCURACY_WARNING"
	AlertAccuracyCritical     = "AI_ACCURACY_CRITICAL"
	AlertRequestFailed        = "AI_REQUEST_FAILED"
)

// Alert is a persisted performance alert. Write-once: immutable after
// it has been handed to the store.
type Alert struct {
	ID        string         `json:"id"`
	AlertType string         `json:"alertType"`
	Severity  AlertSeverity  `json:"severity"`
	Details   map[string]any `json:"details"`
	CreatedAt time.Time      `json:"createdAt"`
}
