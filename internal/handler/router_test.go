package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/concordia-platform/ai-monitor-go/internal/domain"
	"github.com/concordia-platform/ai-monitor-go/internal/handler"
	"github.com/concordia-platform/ai-monitor-go/internal/health"
	"github.com/concordia-platform/ai-monitor-go/internal/infra/cache"
	"github.com/concordia-platform/ai-monitor-go/internal/infra/observability"
	"github.com/concordia-platform/ai-monitor-go/internal/monitor"
	"github.com/concordia-platform/ai-monitor-go/internal/ratelimit"

	"go.uber.org/zap"
)

type stubAgent struct {
	resp *domain.AgentResponse
	err  error
}

func (s *stubAgent) Call(_ context.Context, _ *domain.AgentRequest) (*domain.AgentResponse, error) {
	return s.resp, s.err
}

type stubLogStore struct {
	mu   sync.Mutex
	rows []domain.RequestMetric
}

func (s *stubLogStore) InsertRequestLog(_ context.Context, metric *domain.RequestMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, *metric)
	return nil
}

func (s *stubLogStore) QueryRequestLogs(_ context.Context, _ domain.SummaryFilter) ([]domain.RequestMetric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.RequestMetric(nil), s.rows...), nil
}

type stubAlertStore struct{}

func (stubAlertStore) InsertAlert(_ context.Context, _ *domain.Alert) error { return nil }

type stubPinger struct{ err error }

func (s *stubPinger) Ping(_ context.Context) error { return s.err }

type routerFixture struct {
	router   http.Handler
	logStore *stubLogStore
}

func newTestRouter(t *testing.T, agent *stubAgent, dbErr error, aiLimit int) *routerFixture {
	t.Helper()

	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	logStore := &stubLogStore{}

	aggCache := cache.New[domain.RollingAggregate](time.Minute)
	t.Cleanup(aggCache.Close)
	aggregator := monitor.NewAggregator(aggCache, logStore, metrics, logger)
	alerts := monitor.NewAlertEngine(stubAlertStore{}, monitor.DefaultThresholds(), metrics, logger)
	tracker := monitor.NewTracker(logStore, aggregator, alerts, metrics, logger)

	counterStore := ratelimit.NewMemoryStore(time.Minute)
	t.Cleanup(counterStore.Close)
	limiter := ratelimit.NewLimiter(counterStore, metrics, logger)
	tiers := handler.Tiers{
		General: ratelimit.Tier{Name: "general", Limit: 1000, Window: time.Minute},
		Auth:    ratelimit.Tier{Name: "auth", Limit: 1000, Window: time.Minute},
		AI:      ratelimit.Tier{Name: "ai", Limit: aiLimit, Window: time.Minute},
	}

	healthAgg := health.NewAggregator(&stubPinger{err: dbErr}, &stubPinger{}, nil, time.Second, "test", "test", logger)

	return &routerFixture{
		router:   handler.NewRouter(tracker, aggregator, agent, limiter, tiers, healthAgg, metrics, logger),
		logStore: logStore,
	}
}

func happyAgent() *stubAgent {
	return &stubAgent{resp: &domain.AgentResponse{
		Answer:     "Mediation begins with a joint session.",
		Model:      "gpt-4o",
		Accuracy:   0.91,
		Confidence: 0.88,
		TokensUsed: domain.TokenUsage{PromptTokens: 120, CompletionTokens: 340, TotalTokens: 460},
	}}
}

func TestRouter_Health(t *testing.T) {
	fixture := newTestRouter(t, happyAgent(), nil, 1000)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	fixture.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var snap domain.HealthSnapshot
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatalf("decoding snapshot: %v", err)
	}
	if snap.Status != domain.HealthHealthy {
		t.Errorf("expected healthy, got %q", snap.Status)
	}
	if snap.Instance != nil {
		t.Error("basic health must not include instance details")
	}
}

func TestRouter_HealthDetailed(t *testing.T) {
	fixture := newTestRouter(t, happyAgent(), nil, 1000)

	req := httptest.NewRequest(http.MethodGet, "/health?detailed=true", nil)
	rec := httptest.NewRecorder()
	fixture.router.ServeHTTP(rec, req)

	var snap domain.HealthSnapshot
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatalf("decoding snapshot: %v", err)
	}
	if snap.Instance == nil {
		t.Error("detailed health must include instance details")
	}
}

func TestRouter_HealthDegradedReturns503(t *testing.T) {
	fixture := newTestRouter(t, happyAgent(), errors.New("connection refused"), 1000)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	fixture.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestRouter_ReadyAndLive(t *testing.T) {
	degraded := newTestRouter(t, happyAgent(), errors.New("down"), 1000)

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	degraded.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("ready: expected 503 when a dependency is down, got %d", rec.Code)
	}

	// liveness ignores dependencies
	req = httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec = httptest.NewRecorder()
	degraded.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("live: expected 200 regardless of dependencies, got %d", rec.Code)
	}
}

func TestRouter_Metrics(t *testing.T) {
	fixture := newTestRouter(t, happyAgent(), nil, 1000)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	fixture.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRouter_AIRequestHappyPath(t *testing.T) {
	fixture := newTestRouter(t, happyAgent(), nil, 1000)

	body, _ := json.Marshal(map[string]any{
		"requestId":    "req-1",
		"jurisdiction": "BR",
		"query":        "How do I open a mediation case?",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/ai/mediation", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	fixture.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		RequestID string  `json:"requestId"`
		Answer    string  `json:"answer"`
		Accuracy  float64 `json:"accuracy"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.RequestID != "req-1" {
		t.Errorf("expected requestId req-1, got %q", resp.RequestID)
	}
	if resp.Answer == "" {
		t.Error("expected agent answer in response")
	}

	rows, _ := fixture.logStore.QueryRequestLogs(context.Background(), domain.SummaryFilter{})
	if len(rows) != 1 {
		t.Fatalf("expected 1 persisted request log, got %d", len(rows))
	}
	if rows[0].Status != domain.StatusSuccess {
		t.Errorf("expected success status, got %q", rows[0].Status)
	}
}

func TestRouter_AIRequestUpstreamFailure(t *testing.T) {
	agent := &stubAgent{err: &domain.ErrExternalService{Service: "agent", Err: errors.New("upstream 502")}}
	fixture := newTestRouter(t, agent, nil, 1000)

	body, _ := json.Marshal(map[string]any{"jurisdiction": "BR", "query": "hello"})
	req := httptest.NewRequest(http.MethodPost, "/v1/ai/guidance", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	fixture.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}

	rows, _ := fixture.logStore.QueryRequestLogs(context.Background(), domain.SummaryFilter{})
	if len(rows) != 1 {
		t.Fatalf("expected the failed request to be recorded, got %d rows", len(rows))
	}
	if rows[0].Status != domain.StatusError {
		t.Errorf("expected error status, got %q", rows[0].Status)
	}
	if rows[0].ErrorDetails == "" {
		t.Error("expected error details on the persisted record")
	}
}

func TestRouter_AIRequestValidation(t *testing.T) {
	fixture := newTestRouter(t, happyAgent(), nil, 1000)

	cases := []struct {
		name string
		path string
		body string
	}{
		{"unknown service type", "/v1/ai/fortune-telling", `{"jurisdiction":"BR","query":"hi"}`},
		{"missing query", "/v1/ai/guidance", `{"jurisdiction":"BR"}`},
		{"missing jurisdiction", "/v1/ai/guidance", `{"query":"hi"}`},
		{"malformed body", "/v1/ai/guidance", `{`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tc.path, bytes.NewReader([]byte(tc.body)))
			rec := httptest.NewRecorder()
			fixture.router.ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestRouter_AITierRateLimit(t *testing.T) {
	fixture := newTestRouter(t, happyAgent(), nil, 1)

	body := []byte(`{"jurisdiction":"BR","query":"hi"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/ai/guidance", bytes.NewReader(body))
	req.RemoteAddr = "203.0.113.9:1000"
	rec := httptest.NewRecorder()
	fixture.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/ai/guidance", bytes.NewReader(body))
	req.RemoteAddr = "203.0.113.9:1000"
	rec = httptest.NewRecorder()
	fixture.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestRouter_SummaryEndpoint(t *testing.T) {
	fixture := newTestRouter(t, happyAgent(), nil, 1000)

	body := []byte(`{"jurisdiction":"BR","query":"hi"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/ai/translation", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	fixture.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("seeding request failed with %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/metrics/summary?serviceType=translation&timeframe=1h", nil)
	rec = httptest.NewRecorder()
	fixture.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var summary domain.PerformanceSummary
	if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
		t.Fatalf("decoding summary: %v", err)
	}
	if summary.TotalRequests != 1 {
		t.Errorf("expected 1 total request, got %d", summary.TotalRequests)
	}
}

func TestRouter_SummaryValidation(t *testing.T) {
	fixture := newTestRouter(t, happyAgent(), nil, 1000)

	for _, path := range []string{
		"/v1/metrics/summary?serviceType=bogus",
		"/v1/metrics/summary?timeframe=yesterday",
		"/v1/metrics/summary?timeframe=-1h",
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		fixture.router.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, rec.Code)
		}
	}
}

func TestRouter_RollingEndpoint(t *testing.T) {
	fixture := newTestRouter(t, happyAgent(), nil, 1000)

	req := httptest.NewRequest(http.MethodGet, "/v1/metrics/rolling/guidance", nil)
	rec := httptest.NewRecorder()
	fixture.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before any completion, got %d", rec.Code)
	}

	body := []byte(`{"jurisdiction":"BR","query":"hi"}`)
	req = httptest.NewRequest(http.MethodPost, "/v1/ai/guidance", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	fixture.router.ServeHTTP(rec, req)

	req = httptest.NewRequest(http.MethodGet, "/v1/metrics/rolling/guidance", nil)
	rec = httptest.NewRecorder()
	fixture.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after a completion, got %d", rec.Code)
	}

	var agg domain.RollingAggregate
	if err := json.NewDecoder(rec.Body).Decode(&agg); err != nil {
		t.Fatalf("decoding aggregate: %v", err)
	}
	if agg.TotalRequests != 1 {
		t.Errorf("expected 1 total request, got %d", agg.TotalRequests)
	}
}

func TestRouter_MonitorSnapshotEndpoint(t *testing.T) {
	fixture := newTestRouter(t, happyAgent(), nil, 1000)

	req := httptest.NewRequest(http.MethodGet, "/v1/metrics/monitor", nil)
	rec := httptest.NewRecorder()
	fixture.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var snap observability.MonitorSnapshot
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatalf("decoding snapshot: %v", err)
	}
}

func TestRouter_ActiveRequestsEndpoint(t *testing.T) {
	fixture := newTestRouter(t, happyAgent(), nil, 1000)

	req := httptest.NewRequest(http.MethodGet, "/v1/requests/active", nil)
	rec := httptest.NewRecorder()
	fixture.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		ActiveCount int `json:"activeCount"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.ActiveCount != 0 {
		t.Errorf("expected 0 active requests, got %d", resp.ActiveCount)
	}
}
