package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/concordia-platform/ai-monitor-go/internal/config"
	"github.com/concordia-platform/ai-monitor-go/internal/domain"
	"github.com/concordia-platform/ai-monitor-go/internal/handler"
	"github.com/concordia-platform/ai-monitor-go/internal/health"
	"github.com/concordia-platform/ai-monitor-go/internal/infra/cache"
	"github.com/concordia-platform/ai-monitor-go/internal/infra/client"
	"github.com/concordia-platform/ai-monitor-go/internal/infra/observability"
	"github.com/concordia-platform/ai-monitor-go/internal/infra/redisstore"
	"github.com/concordia-platform/ai-monitor-go/internal/infra/resilience"
	"github.com/concordia-platform/ai-monitor-go/internal/infra/supabase"
	"github.com/concordia-platform/ai-monitor-go/internal/monitor"
	"github.com/concordia-platform/ai-monitor-go/internal/ratelimit"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("environment", cfg.Environment),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Duration("stale_request_age", cfg.StaleRequestAge),
		zap.Bool("use_redis", cfg.UseRedis),
		zap.Int("rate_limit_general", cfg.RateLimitGeneral),
	)

	// --- Tracing ---
	shutdownTracer, err := observability.InitTracer(cfg.OTLPEndpoint, "concordia-ai-monitor")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdownTracer(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	storeCB := resilience.NewCircuitBreaker("supabase")
	agentCB := resilience.NewCircuitBreaker("agent")

	// --- Durable store ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	store := supabase.NewClient(
		httpClient,
		cfg.SupabaseURL,
		cfg.SupabaseAnonKey,
		cfg.SupabaseServiceKey,
		storeCB,
		resilienceCfg,
		logger,
	)

	// --- Redis ---
	redisClient := redisstore.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
	defer redisClient.Close()

	// --- Rolling aggregate cache ---
	aggregateCache := cache.New[domain.RollingAggregate](cfg.CacheTTL)
	defer aggregateCache.Close()

	// --- Monitor services ---
	aggregator := monitor.NewAggregator(aggregateCache, store, metrics, logger)
	alerts := monitor.NewAlertEngine(store, monitor.DefaultThresholds(), metrics, logger)
	tracker := monitor.NewTracker(store, aggregator, alerts, metrics, logger)

	// --- Rate limiter ---
	var counterStore ratelimit.CounterStore
	var memoryCounters *ratelimit.MemoryStore
	if cfg.UseRedis {
		logger.Info("using redis as rate-limit counter store", zap.String("redis_addr", cfg.RedisAddr))
		counterStore = redisClient
	} else {
		logger.Info("using in-process rate-limit counter store")
		memoryCounters = ratelimit.NewMemoryStore(cfg.CounterSweepInterval)
		defer memoryCounters.Close()
		counterStore = memoryCounters
	}
	limiter := ratelimit.NewLimiter(counterStore, metrics, logger)
	general, auth, ai := ratelimit.DefaultTiers(cfg.RateLimitGeneral)

	// --- Health ---
	healthAgg := health.NewAggregator(
		store,
		redisClient,
		redisClient,
		cfg.HealthProbeTimeout,
		cfg.Version,
		cfg.Environment,
		logger,
	)

	// --- Upstream AI agent ---
	agentClient := client.NewAgentClient(httpClient, cfg.AgentAPIURL, agentCB, resilienceCfg)

	// --- Stale request sweep ---
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go func() {
		ticker := time.NewTicker(cfg.StaleSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				if swept := tracker.CleanupStale(sweepCtx, cfg.StaleRequestAge); swept > 0 {
					logger.Warn("stale request sweep completed", zap.Int("swept", swept))
				}
			}
		}
	}()

	// --- Router ---
	router := handler.NewRouter(
		tracker,
		aggregator,
		agentClient,
		limiter,
		handler.Tiers{General: general, Auth: auth, AI: ai},
		healthAgg,
		metrics,
		logger,
	)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
