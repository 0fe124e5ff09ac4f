package domain

import "time"

// ============================================================
// Health & readiness API responses
// ============================================================

// Health statuses reported for the process and its dependencies.
const (
	HealthHealthy   = "healthy"
	HealthUnhealthy = "unhealthy"
)

// DependencyHealth is the outcome of one bounded-timeout probe.
type DependencyHealth struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latencyMs,omitempty"`
	Error     string `json:"error,omitempty"`
}

// MemoryHealth reports process memory pressure. Ratio is allocated
// bytes over bytes obtained from the OS; >= 0.90 flips the status.
type MemoryHealth struct {
	Status      string  `json:"status"`
	AllocatedMB float64 `json:"allocatedMb"`
	SystemMB    float64 `json:"systemMb"`
	Ratio       float64 `json:"ratio"`
}

// CPUHealth reports scheduler occupancy for the process.
type CPUHealth struct {
	Status     string `json:"status"`
	Cores      int    `json:"cores"`
	Goroutines int    `json:"goroutines"`
}

// ServiceChecks groups the per-dependency results inside a snapshot.
type ServiceChecks struct {
	Database DependencyHealth `json:"database"`
	Redis    DependencyHealth `json:"redis"`
	Memory   MemoryHealth     `json:"memory"`
	CPU      CPUHealth        `json:"cpu"`
}

// InstanceInfo identifies the running process (detailed snapshots only).
type InstanceInfo struct {
	Hostname    string `json:"hostname"`
	PID         int    `json:"pid"`
	GoVersion   string `json:"goVersion"`
	Environment string `json:"environment"`
}

// SnapshotDetails carries collaborator introspection data (detailed
// snapshots only), such as redis connection-pool occupancy.
type SnapshotDetails struct {
	RedisPool *RedisPoolStats `json:"redisPool,omitempty"`
}

// RedisPoolStats mirrors the redis client's own pool counters.
type RedisPoolStats struct {
	TotalConns uint32 `json:"totalConns"`
	IdleConns  uint32 `json:"idleConns"`
	Hits       uint32 `json:"hits"`
	Misses     uint32 `json:"misses"`
	Timeouts   uint32 `json:"timeouts"`
}

// HealthSnapshot is returned by GET /health. Computed fresh on every
// call; never cached.
type HealthSnapshot struct {
	Status    string           `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
	Uptime    float64          `json:"uptime"`
	Version   string           `json:"version"`
	Services  ServiceChecks    `json:"services"`
	Instance  *InstanceInfo    `json:"instance,omitempty"`
	Details   *SnapshotDetails `json:"details,omitempty"`
}
