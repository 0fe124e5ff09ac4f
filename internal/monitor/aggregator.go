package monitor

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/concordia-platform/ai-monitor-go/internal/domain"
	"github.com/concordia-platform/ai-monitor-go/internal/infra/observability"
	"github.com/concordia-platform/ai-monitor-go/internal/port"

	"go.uber.org/zap"
)

// Aggregator maintains cache-resident rolling statistics per service
// type and answers authoritative summary queries from the durable
// store. The cache is best effort: its TTL expires aggregates, which
// are rebuilt fresh on the next completion.
type Aggregator struct {
	cache   port.Cache[domain.RollingAggregate]
	store   port.RequestLogStore
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewAggregator creates an aggregator over the given cache and store.
func NewAggregator(
	cache port.Cache[domain.RollingAggregate],
	store port.RequestLogStore,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Aggregator {
	return &Aggregator{
		cache:   cache,
		store:   store,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// UpdateRealTime folds one completed metric into the rolling aggregate
// for its service type. The cache Update primitive serializes the
// read-modify-write per key, so concurrent completions for the same
// service type never lose an increment.
func (a *Aggregator) UpdateRealTime(metric *domain.RequestMetric) domain.RollingAggregate {
	key := string(metric.ServiceType)

	return a.cache.Update(key, func(agg domain.RollingAggregate, found bool) domain.RollingAggregate {
		if found {
			a.metrics.IncrCacheHit("aggregates")
		} else {
			a.metrics.IncrCacheMiss("aggregates")
			agg = domain.RollingAggregate{ServiceType: metric.ServiceType}
		}

		agg.TotalRequests++
		n := float64(agg.TotalRequests)
		agg.AverageResponseTime = (agg.AverageResponseTime*(n-1) + float64(metric.DurationMs())) / n

		if metric.Status == domain.StatusSuccess {
			agg.SuccessfulRequests++
			// accuracy averages only over successful requests
			if metric.Accuracy != nil {
				s := float64(agg.SuccessfulRequests)
				agg.AverageAccuracy = (agg.AverageAccuracy*(s-1) + *metric.Accuracy) / s
			}
		}

		agg.LastUpdated = a.now()
		return agg
	})
}

// GetRolling returns the current cached aggregate for a service type,
// if one exists. Cheap dashboard polling only; GetSummary is the
// authoritative path.
func (a *Aggregator) GetRolling(serviceType domain.ServiceType) (domain.RollingAggregate, bool) {
	return a.cache.Get(string(serviceType))
}

// GetSummary computes the authoritative performance report for a time
// window from the durable store: counts by status, average duration,
// true 95th-percentile duration, null-ignoring quality averages and
// summed token usage.
func (a *Aggregator) GetSummary(ctx context.Context, filter domain.SummaryFilter) (*domain.PerformanceSummary, error) {
	if filter.Until.IsZero() {
		filter.Until = a.now()
	}

	rows, err := a.store.QueryRequestLogs(ctx, filter)
	if err != nil {
		a.logger.Error("aggregator: summary query failed", zap.Error(err))
		return nil, err
	}

	summary := &domain.PerformanceSummary{
		ServiceType:  filter.ServiceType,
		Jurisdiction: filter.Jurisdiction,
		From:         filter.Since,
		To:           filter.Until,
	}

	if len(rows) == 0 {
		return summary, nil
	}

	durations := make([]int64, 0, len(rows))
	var durationSum float64
	var accuracySum, confidenceSum float64
	var accuracyN, confidenceN int64

	for i := range rows {
		row := &rows[i]
		summary.TotalRequests++
		switch row.Status {
		case domain.StatusSuccess:
			summary.SuccessfulRequests++
		case domain.StatusError:
			summary.FailedRequests++
		case domain.StatusTimeout:
			summary.TimedOutRequests++
		}

		d := row.DurationMs()
		durations = append(durations, d)
		durationSum += float64(d)

		if row.Accuracy != nil {
			accuracySum += *row.Accuracy
			accuracyN++
		}
		if row.Confidence != nil {
			confidenceSum += *row.Confidence
			confidenceN++
		}
		if row.TokenUsage != nil {
			summary.TokenUsage.PromptTokens += row.TokenUsage.PromptTokens
			summary.TokenUsage.CompletionTokens += row.TokenUsage.CompletionTokens
			summary.TokenUsage.TotalTokens += row.TokenUsage.TotalTokens
		}
	}

	summary.AverageDurationMs = durationSum / float64(len(durations))
	summary.P95DurationMs = percentile(durations, 0.95)

	if accuracyN > 0 {
		avg := accuracySum / float64(accuracyN)
		summary.AverageAccuracy = &avg
	}
	if confidenceN > 0 {
		avg := confidenceSum / float64(confidenceN)
		summary.AverageConfidence = &avg
	}

	return summary, nil
}

// percentile returns the p-th percentile (nearest-rank) of values.
func percentile(values []int64, p float64) int64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]int64, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}
