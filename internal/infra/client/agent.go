// Package client holds HTTP clients for external collaborators.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/concordia-platform/ai-monitor-go/internal/domain"
	"github.com/concordia-platform/ai-monitor-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("client")

// AgentClient calls the upstream generative-AI agent service. The
// bulkhead bounds concurrent upstream calls so a slow agent cannot
// absorb every handler goroutine.
type AgentClient struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	bulkhead   *resilience.Bulkhead
	cfg        resilience.Config
}

// NewAgentClient creates a new AgentClient.
func NewAgentClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *AgentClient {
	maxConcurrency := cfg.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &AgentClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		cb:         cb,
		bulkhead:   resilience.NewBulkhead(maxConcurrency),
		cfg:        cfg,
	}
}

// Call invokes the AI agent and returns its response.
// Implements port.AgentCaller.
func (c *AgentClient) Call(ctx context.Context, req *domain.AgentRequest) (*domain.AgentResponse, error) {
	ctx, span := tracer.Start(ctx, "AgentClient.Call")
	defer span.End()
	span.SetAttributes(
		attribute.String("request.id", req.RequestID),
		attribute.String("request.service_type", string(req.ServiceType)),
	)

	if err := c.bulkhead.Acquire(ctx); err != nil {
		return nil, &domain.ErrTimeout{Operation: "agent bulkhead acquire"}
	}
	defer c.bulkhead.Release()

	var agentResp domain.AgentResponse

	result, err := c.cb.Execute(func() (any, error) {
		innerErr := resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			body, err := json.Marshal(req)
			if err != nil {
				return err
			}

			url := fmt.Sprintf("%s/v1/agent/invoke", c.baseURL)
			httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
			if err != nil {
				return err
			}
			httpReq.Header.Set("Content-Type", "application/json")

			resp, err := c.httpClient.Do(httpReq)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("agent API returned status %d", resp.StatusCode)
			}

			return json.NewDecoder(resp.Body).Decode(&agentResp)
		})
		if innerErr != nil {
			return nil, innerErr
		}
		return &agentResp, nil
	})

	if err != nil {
		return nil, &domain.ErrExternalService{Service: "agent", Err: err}
	}

	return result.(*domain.AgentResponse), nil
}
