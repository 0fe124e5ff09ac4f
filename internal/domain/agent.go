package domain

// AgentRequest is the payload sent to the upstream generative-AI agent.
// The monitor wraps this call; it does not implement it.
type AgentRequest struct {
	RequestID    string         `json:"requestId"`
	ServiceType  ServiceType    `json:"serviceType"`
	Jurisdiction string         `json:"jurisdiction"`
	Query        string         `json:"query"`
	Context      map[string]any `json:"context,omitempty"`
}

// AgentResponse is the upstream agent's answer plus its self-reported
// quality scores and token consumption.
type AgentResponse struct {
	Answer     string     `json:"answer"`
	Model      string     `json:"model,omitempty"`
	Accuracy   float64    `json:"accuracy"`
	Confidence float64    `json:"confidence"`
	TokensUsed TokenUsage `json:"tokensUsed"`
}
