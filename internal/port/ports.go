// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the monitor
// components from concrete implementations.
package port

import (
	"context"

	"github.com/concordia-platform/ai-monitor-go/internal/domain"
)

// AgentCaller invokes the upstream generative-AI agent service.
type AgentCaller interface {
	Call(ctx context.Context, req *domain.AgentRequest) (*domain.AgentResponse, error)
}

// Cache provides generic caching with TTL. Update performs an atomic
// read-modify-write: fn receives the current value (or the zero value
// when absent/expired) and returns the replacement. No other writer for
// the same key may interleave with fn.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
	Update(key string, fn func(current T, found bool) T) T
}

// RequestLogStore persists terminal request metrics and answers summary
// queries. Implemented by the Supabase adapter.
type RequestLogStore interface {
	InsertRequestLog(ctx context.Context, metric *domain.RequestMetric) error
	QueryRequestLogs(ctx context.Context, filter domain.SummaryFilter) ([]domain.RequestMetric, error)
}

// AlertStore persists performance alert records.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert *domain.Alert) error
}

// Pinger is a dependency that can answer a liveness probe. Implemented
// by the durable store and the redis client for health checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PoolIntrospector exposes a collaborator's own connection-pool
// counters for the detailed health view.
type PoolIntrospector interface {
	PoolStats() *domain.RedisPoolStats
}
