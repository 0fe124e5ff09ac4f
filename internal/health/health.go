// Package health aggregates dependency probes into readiness, liveness
// and health views.
package health

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/concordia-platform/ai-monitor-go/internal/domain"
	"github.com/concordia-platform/ai-monitor-go/internal/port"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// memoryRatioLimit flips the overall status when allocated memory
// crosses this share of memory obtained from the OS.
const memoryRatioLimit = 0.90

// Aggregator probes the monitor's dependencies in parallel, each under
// its own bounded timeout, and rolls the results into a snapshot.
// Snapshots are computed fresh on every call, never cached.
type Aggregator struct {
	database     port.Pinger
	redis        port.Pinger
	redisPool    port.PoolIntrospector
	probeTimeout time.Duration
	version      string
	environment  string
	startedAt    time.Time
	logger       *zap.Logger
}

// NewAggregator creates a health aggregator. redisPool may be nil when
// the redis collaborator offers no pool introspection.
func NewAggregator(
	database port.Pinger,
	redis port.Pinger,
	redisPool port.PoolIntrospector,
	probeTimeout time.Duration,
	version, environment string,
	logger *zap.Logger,
) *Aggregator {
	if probeTimeout <= 0 {
		probeTimeout = 5 * time.Second
	}
	return &Aggregator{
		database:     database,
		redis:        redis,
		redisPool:    redisPool,
		probeTimeout: probeTimeout,
		version:      version,
		environment:  environment,
		startedAt:    time.Now(),
		logger:       logger,
	}
}

// Snapshot runs all dependency probes in parallel and computes the
// overall status: healthy iff every attempted probe succeeded and the
// memory ratio is below the limit. detailed=true adds process identity
// and collaborator pool occupancy.
func (a *Aggregator) Snapshot(ctx context.Context, detailed bool) *domain.HealthSnapshot {
	var dbResult, redisResult domain.DependencyHealth

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		dbResult = a.probe(gCtx, "database", a.database)
		return nil
	})
	g.Go(func() error {
		redisResult = a.probe(gCtx, "redis", a.redis)
		return nil
	})
	// probes record their own failures; the group never errors
	_ = g.Wait()

	memory := memoryHealth()
	cpu := domain.CPUHealth{
		Status:     domain.HealthHealthy,
		Cores:      runtime.NumCPU(),
		Goroutines: runtime.NumGoroutine(),
	}

	overall := domain.HealthHealthy
	if dbResult.Status != domain.HealthHealthy ||
		redisResult.Status != domain.HealthHealthy ||
		memory.Status != domain.HealthHealthy {
		overall = domain.HealthUnhealthy
	}

	snapshot := &domain.HealthSnapshot{
		Status:    overall,
		Timestamp: time.Now(),
		Uptime:    time.Since(a.startedAt).Seconds(),
		Version:   a.version,
		Services: domain.ServiceChecks{
			Database: dbResult,
			Redis:    redisResult,
			Memory:   memory,
			CPU:      cpu,
		},
	}

	if detailed {
		hostname, _ := os.Hostname()
		snapshot.Instance = &domain.InstanceInfo{
			Hostname:    hostname,
			PID:         os.Getpid(),
			GoVersion:   runtime.Version(),
			Environment: a.environment,
		}
		if a.redisPool != nil {
			snapshot.Details = &domain.SnapshotDetails{
				RedisPool: a.redisPool.PoolStats(),
			}
		}
	}

	return snapshot
}

// Ready reports whether the service can currently serve traffic: all
// dependency probes must pass.
func (a *Aggregator) Ready(ctx context.Context) bool {
	snapshot := a.Snapshot(ctx, false)
	return snapshot.Services.Database.Status == domain.HealthHealthy &&
		snapshot.Services.Redis.Status == domain.HealthHealthy
}

// Uptime supports the liveness probe, which deliberately checks no
// dependencies: a dependency outage must not look like a dead process
// and trigger restarts.
func (a *Aggregator) Uptime() time.Duration {
	return time.Since(a.startedAt)
}

// probe runs one dependency check under its own timeout. Failures are
// captured in the result, never thrown past the aggregator.
func (a *Aggregator) probe(ctx context.Context, name string, p port.Pinger) domain.DependencyHealth {
	if p == nil {
		return domain.DependencyHealth{Status: domain.HealthUnhealthy, Error: "not configured"}
	}

	probeCtx, cancel := context.WithTimeout(ctx, a.probeTimeout)
	defer cancel()

	start := time.Now()
	err := p.Ping(probeCtx)
	latency := time.Since(start)

	if err != nil {
		a.logger.Warn("health: dependency probe failed",
			zap.String("dependency", name),
			zap.Duration("latency", latency),
			zap.Error(err),
		)
		return domain.DependencyHealth{
			Status:    domain.HealthUnhealthy,
			LatencyMs: latency.Milliseconds(),
			Error:     err.Error(),
		}
	}

	return domain.DependencyHealth{
		Status:    domain.HealthHealthy,
		LatencyMs: latency.Milliseconds(),
	}
}

func memoryHealth() domain.MemoryHealth {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	ratio := 0.0
	if stats.Sys > 0 {
		ratio = float64(stats.Alloc) / float64(stats.Sys)
	}

	status := domain.HealthHealthy
	if ratio >= memoryRatioLimit {
		status = domain.HealthUnhealthy
	}

	return domain.MemoryHealth{
		Status:      status,
		AllocatedMB: float64(stats.Alloc) / (1024 * 1024),
		SystemMB:    float64(stats.Sys) / (1024 * 1024),
		Ratio:       ratio,
	}
}
