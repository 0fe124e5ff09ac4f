package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port        int
	LogLevel    string
	Version     string
	Environment string

	// External services
	AgentAPIURL string

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Cache
	CacheTTL time.Duration

	// Observability
	OTLPEndpoint string

	// Supabase (durable store)
	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseServiceKey string

	// Redis (shared rate-limit counters + health probe)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	UseRedis      bool

	// Rate limiting
	RateLimitGeneral     int
	CounterSweepInterval time.Duration

	// Request tracking
	StaleRequestAge    time.Duration
	StaleSweepInterval time.Duration

	// Health
	HealthProbeTimeout time.Duration
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:        getEnvInt("PORT", 8080),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Version:     getEnv("APP_VERSION", "dev"),
		Environment: getEnv("APP_ENV", "development"),

		AgentAPIURL: getEnv("AGENT_API_URL", "http://localhost:8090"),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 10*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 50),

		CacheTTL: getEnvDuration("CACHE_TTL", 5*time.Minute),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),

		SupabaseURL:        getEnv("SUPABASE_URL", ""),
		SupabaseAnonKey:    getEnv("SUPABASE_ANON_KEY", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		UseRedis:      getEnv("USE_REDIS", "false") == "true",

		RateLimitGeneral:     getEnvInt("RATE_LIMIT_GENERAL", 60),
		CounterSweepInterval: getEnvDuration("RATE_LIMIT_SWEEP_INTERVAL", time.Minute),

		StaleRequestAge:    getEnvDuration("STALE_REQUEST_AGE", 30*time.Minute),
		StaleSweepInterval: getEnvDuration("STALE_SWEEP_INTERVAL", 5*time.Minute),

		HealthProbeTimeout: getEnvDuration("HEALTH_PROBE_TIMEOUT", 5*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
