package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/concordia-platform/ai-monitor-go/internal/domain"
	"github.com/concordia-platform/ai-monitor-go/internal/handler"
	"github.com/concordia-platform/ai-monitor-go/internal/health"
	"github.com/concordia-platform/ai-monitor-go/internal/infra/cache"
	"github.com/concordia-platform/ai-monitor-go/internal/infra/client"
	"github.com/concordia-platform/ai-monitor-go/internal/infra/observability"
	"github.com/concordia-platform/ai-monitor-go/internal/infra/resilience"
	"github.com/concordia-platform/ai-monitor-go/internal/infra/supabase"
	"github.com/concordia-platform/ai-monitor-go/internal/monitor"
	"github.com/concordia-platform/ai-monitor-go/internal/ratelimit"

	"go.uber.org/zap"
)

// fakePostgREST is an in-memory stand-in for the Supabase REST API. It
// accepts inserts into ai_request_logs and ai_performance_alerts and
// answers reads with everything stored so far.
type fakePostgREST struct {
	mu     sync.Mutex
	logs   []json.RawMessage
	alerts []json.RawMessage
}

func (f *fakePostgREST) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/v1/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/rest/v1/ai_request_logs", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		switch r.Method {
		case http.MethodPost:
			var row json.RawMessage
			if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			f.logs = append(f.logs, row)
			w.WriteHeader(http.StatusCreated)
		case http.MethodGet:
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(f.logs)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/rest/v1/ai_performance_alerts", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var row json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.alerts = append(f.alerts, row)
		w.WriteHeader(http.StatusCreated)
	})
	return mux
}

type okPinger struct{}

func (okPinger) Ping(_ context.Context) error { return nil }

// buildMonitor wires the full stack against the given upstream URLs,
// mirroring the production composition in cmd/monitor.
func buildMonitor(t *testing.T, agentURL, supabaseURL string) http.Handler {
	t.Helper()

	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	cfg := resilience.Config{MaxRetries: 1, InitialBackoff: 10 * time.Millisecond, MaxConcurrency: 10}
	httpClient := &http.Client{Timeout: 5 * time.Second}

	store := supabase.NewClient(httpClient, supabaseURL, "test-key", "test-role-key",
		resilience.NewCircuitBreaker("supabase"), cfg, logger)

	aggCache := cache.New[domain.RollingAggregate](5 * time.Minute)
	t.Cleanup(aggCache.Close)
	aggregator := monitor.NewAggregator(aggCache, store, metrics, logger)
	alerts := monitor.NewAlertEngine(store, monitor.DefaultThresholds(), metrics, logger)
	tracker := monitor.NewTracker(store, aggregator, alerts, metrics, logger)

	counterStore := ratelimit.NewMemoryStore(time.Minute)
	t.Cleanup(counterStore.Close)
	limiter := ratelimit.NewLimiter(counterStore, metrics, logger)
	general, auth, ai := ratelimit.DefaultTiers(1000)
	ai.Limit = 1000

	healthAgg := health.NewAggregator(store, okPinger{}, nil, time.Second, "test", "test", logger)

	agent := client.NewAgentClient(httpClient, agentURL, resilience.NewCircuitBreaker("agent"), cfg)

	return handler.NewRouter(tracker, aggregator, agent, limiter,
		handler.Tiers{General: general, Auth: auth, AI: ai}, healthAgg, metrics, logger)
}

// TestIntegration_FullFlow drives one AI request through the real HTTP
// clients against mock upstreams and checks tracking, persistence and
// the summary report.
func TestIntegration_FullFlow(t *testing.T) {
	agentServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req domain.AgentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		resp := domain.AgentResponse{
			Answer:     "Under Brazilian law, mediation starts with a joint statement.",
			Model:      "gpt-4o",
			Accuracy:   0.92,
			Confidence: 0.89,
			TokensUsed: domain.TokenUsage{PromptTokens: 700, CompletionTokens: 250, TotalTokens: 950},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer agentServer.Close()

	db := &fakePostgREST{}
	dbServer := httptest.NewServer(db.handler())
	defer dbServer.Close()

	router := buildMonitor(t, agentServer.URL, dbServer.URL)

	body, _ := json.Marshal(map[string]any{
		"requestId":    "req-integration-1",
		"jurisdiction": "BR",
		"query":        "How do I start a mediation case?",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/ai/mediation", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d. Body: %s", rec.Code, rec.Body.String())
	}

	var result struct {
		RequestID string  `json:"requestId"`
		Answer    string  `json:"answer"`
		Accuracy  float64 `json:"accuracy"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result.RequestID != "req-integration-1" {
		t.Errorf("expected requestId req-integration-1, got %q", result.RequestID)
	}
	if result.Answer == "" {
		t.Error("expected answer content to be non-empty")
	}

	db.mu.Lock()
	persisted := len(db.logs)
	db.mu.Unlock()
	if persisted != 1 {
		t.Fatalf("expected 1 persisted request log, got %d", persisted)
	}

	// summary is computed from the durable store
	req = httptest.NewRequest(http.MethodGet, "/v1/metrics/summary?serviceType=mediation&timeframe=1h", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("summary: expected 200, got %d. Body: %s", rec.Code, rec.Body.String())
	}

	var summary domain.PerformanceSummary
	if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
		t.Fatalf("failed to decode summary: %v", err)
	}
	if summary.TotalRequests != 1 {
		t.Errorf("expected 1 total request, got %d", summary.TotalRequests)
	}
	if summary.SuccessfulRequests != 1 {
		t.Errorf("expected 1 successful request, got %d", summary.SuccessfulRequests)
	}
	if summary.TokenUsage.TotalTokens != 950 {
		t.Errorf("expected token total 950, got %d", summary.TokenUsage.TotalTokens)
	}
}

// TestIntegration_AgentFailure tests that an upstream failure is
// reported to the caller and still recorded as an error metric.
func TestIntegration_AgentFailure(t *testing.T) {
	agentServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer agentServer.Close()

	db := &fakePostgREST{}
	dbServer := httptest.NewServer(db.handler())
	defer dbServer.Close()

	router := buildMonitor(t, agentServer.URL, dbServer.URL)

	body, _ := json.Marshal(map[string]any{"jurisdiction": "BR", "query": "hello"})
	req := httptest.NewRequest(http.MethodPost, "/v1/ai/guidance", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if len(db.logs) != 1 {
		t.Fatalf("expected the failed request to be persisted, got %d rows", len(db.logs))
	}
	var row struct {
		Status       string `json:"status"`
		ErrorDetails string `json:"error_details"`
	}
	if err := json.Unmarshal(db.logs[0], &row); err != nil {
		t.Fatalf("failed to decode persisted row: %v", err)
	}
	if row.Status != "error" {
		t.Errorf("expected error status, got %q", row.Status)
	}
	if row.ErrorDetails == "" {
		t.Error("expected error details on persisted row")
	}
	// a failed request raises a performance alert
	if len(db.alerts) != 1 {
		t.Errorf("expected 1 persisted alert, got %d", len(db.alerts))
	}
}

// TestIntegration_HealthReflectsStoreOutage checks the health endpoint
// flips when the durable store goes away.
func TestIntegration_HealthReflectsStoreOutage(t *testing.T) {
	agentServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer agentServer.Close()

	db := &fakePostgREST{}
	dbServer := httptest.NewServer(db.handler())

	router := buildMonitor(t, agentServer.URL, dbServer.URL)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 while the store is up, got %d", rec.Code)
	}

	dbServer.Close()

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 after the store went away, got %d", rec.Code)
	}
}
