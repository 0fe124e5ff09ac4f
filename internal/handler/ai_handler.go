package handler

import (
	"encoding/json"
	"net/http"

	"github.com/concordia-platform/ai-monitor-go/internal/domain"
	"github.com/concordia-platform/ai-monitor-go/internal/monitor"
	"github.com/concordia-platform/ai-monitor-go/internal/port"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type aiRequestBody struct {
	RequestID    string         `json:"requestId,omitempty"`
	Jurisdiction string         `json:"jurisdiction"`
	Query        string         `json:"query"`
	Context      map[string]any `json:"context,omitempty"`
}

type aiResponseBody struct {
	RequestID  string  `json:"requestId"`
	Answer     string  `json:"answer"`
	Model      string  `json:"model,omitempty"`
	Accuracy   float64 `json:"accuracy"`
	Confidence float64 `json:"confidence"`
}

// aiRequestHandler wraps one upstream AI call with tracker
// instrumentation: start before the call, complete after it. The
// tracking path never fails the caller.
func aiRequestHandler(tracker *monitor.Tracker, agent port.AgentCaller, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/ai/{serviceType}")
		defer span.End()

		serviceType := domain.ServiceType(chi.URLParam(r, "serviceType"))
		if !serviceType.Valid() {
			writeError(w, http.StatusBadRequest, "unknown serviceType: "+string(serviceType))
			return
		}

		var body aiRequestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.Query == "" {
			writeError(w, http.StatusBadRequest, "query is required")
			return
		}
		if body.Jurisdiction == "" {
			writeError(w, http.StatusBadRequest, "jurisdiction is required")
			return
		}

		requestID := body.RequestID
		if requestID == "" {
			requestID = uuid.NewString()
		}
		span.SetAttributes(
			attribute.String("request.id", requestID),
			attribute.String("request.service_type", string(serviceType)),
		)

		tracker.StartRequest(requestID, serviceType, body.Jurisdiction, body.Context)

		resp, err := agent.Call(ctx, &domain.AgentRequest{
			RequestID:    requestID,
			ServiceType:  serviceType,
			Jurisdiction: body.Jurisdiction,
			Query:        body.Query,
			Context:      body.Context,
		})
		if err != nil {
			tracker.CompleteRequest(ctx, requestID, domain.StatusError, monitor.Completion{
				ErrorDetails: err.Error(),
			})
			handleServiceError(w, err, logger)
			return
		}

		tracker.CompleteRequest(ctx, requestID, domain.StatusSuccess, monitor.Completion{
			Accuracy:   &resp.Accuracy,
			Confidence: &resp.Confidence,
			TokenUsage: &resp.TokensUsed,
		})

		writeJSON(w, http.StatusOK, aiResponseBody{
			RequestID:  requestID,
			Answer:     resp.Answer,
			Model:      resp.Model,
			Accuracy:   resp.Accuracy,
			Confidence: resp.Confidence,
		})
	}
}
