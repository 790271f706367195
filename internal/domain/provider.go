package domain

import "context"

// LLMProvider is a chat model backend. Implementations map their transport
// failures onto the sentinel errors so retry, breaker and failover logic
// can tell transient failures from permanent ones.
type LLMProvider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	Name() string
}
