package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weatherdine/internal/domain"
	"weatherdine/internal/infra/config"
)

func TestCircuitBreakerPassesThrough(t *testing.T) {
	inner := &mockProvider{name: "openai", chatFunc: func(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
		return &domain.ChatResponse{Message: domain.Message{Content: "ok"}}, nil
	}}
	cb := NewCircuitBreakerProvider(inner, config.CircuitBreakerConfig{}, newTestLogger())

	resp, err := cb.Chat(context.Background(), domain.ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Message.Content)
	assert.Equal(t, "openai", cb.Name())
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	calls := 0
	inner := &mockProvider{name: "openai", chatFunc: func(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
		calls++
		return nil, domain.ErrRateLimit
	}}
	cb := NewCircuitBreakerProvider(inner, config.CircuitBreakerConfig{MaxFailures: 3, Timeout: time.Minute}, newTestLogger())

	for i := 0; i < 3; i++ {
		_, err := cb.Chat(context.Background(), domain.ChatRequest{})
		assert.ErrorIs(t, err, domain.ErrRateLimit)
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State())

	_, err := cb.Chat(context.Background(), domain.ChatRequest{})
	assert.ErrorIs(t, err, domain.ErrCircuitOpen)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 3, calls, "open breaker must not reach the provider")
}

func TestCircuitBreakerRecoversAfterTimeout(t *testing.T) {
	fail := true
	inner := &mockProvider{name: "openai", chatFunc: func(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
		if fail {
			return nil, domain.ErrToolFailure
		}
		return &domain.ChatResponse{}, nil
	}}
	cb := NewCircuitBreakerProvider(inner, config.CircuitBreakerConfig{MaxFailures: 1, Timeout: 20 * time.Millisecond}, newTestLogger())

	_, _ = cb.Chat(context.Background(), domain.ChatRequest{})
	require.Equal(t, gobreaker.StateOpen, cb.State())

	fail = false
	time.Sleep(40 * time.Millisecond)
	_, err := cb.Chat(context.Background(), domain.ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreakerIgnoresCallerErrors(t *testing.T) {
	errs := []error{domain.ErrAuthInvalid, domain.ErrContextOverflow, context.Canceled}
	for _, want := range errs {
		inner := &mockProvider{name: "openai", chatFunc: func(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
			return nil, want
		}}
		cb := NewCircuitBreakerProvider(inner, config.CircuitBreakerConfig{MaxFailures: 1}, newTestLogger())

		for i := 0; i < 3; i++ {
			_, err := cb.Chat(context.Background(), domain.ChatRequest{})
			assert.True(t, errors.Is(err, want))
		}
		assert.Equal(t, gobreaker.StateClosed, cb.State(), "error %v must not trip the breaker", want)
	}
}

func TestCircuitBreakerCounts(t *testing.T) {
	inner := &mockProvider{name: "openai", chatFunc: func(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
		return nil, domain.ErrToolFailure
	}}
	cb := NewCircuitBreakerProvider(inner, config.CircuitBreakerConfig{MaxFailures: 10}, newTestLogger())

	_, _ = cb.Chat(context.Background(), domain.ChatRequest{})
	_, _ = cb.Chat(context.Background(), domain.ChatRequest{})
	assert.Equal(t, uint32(2), cb.Counts().ConsecutiveFailures)
}
