package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sony/gobreaker/v2"

	"weatherdine/internal/domain"
	"weatherdine/internal/infra/breaker"
	"weatherdine/internal/infra/config"
)

var _ domain.LLMProvider = (*CircuitBreakerProvider)(nil)

// CircuitBreakerProvider fails fast with domain.ErrCircuitOpen once a
// provider keeps failing, which lets FailoverProvider move on immediately.
type CircuitBreakerProvider struct {
	inner domain.LLMProvider
	cb    *gobreaker.CircuitBreaker[*domain.ChatResponse]
}

// NewCircuitBreakerProvider guards inner. Invalid keys and context overflows
// are the caller's problem and do not count as provider failures.
func NewCircuitBreakerProvider(inner domain.LLMProvider, cfg config.CircuitBreakerConfig, logger *slog.Logger) *CircuitBreakerProvider {
	cfg.Enabled = true // wrapping is the opt-in
	return &CircuitBreakerProvider{
		inner: inner,
		cb: breaker.New[*domain.ChatResponse]("llm:"+inner.Name(), cfg, logger,
			domain.ErrAuthInvalid, domain.ErrContextOverflow),
	}
}

func (p *CircuitBreakerProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	resp, err := p.cb.Execute(func() (*domain.ChatResponse, error) {
		return p.inner.Chat(ctx, req)
	})
	if breaker.Rejected(err) {
		return nil, fmt.Errorf("provider %q circuit open: %w: %w", p.inner.Name(), domain.ErrCircuitOpen, err)
	}
	return resp, err
}

func (p *CircuitBreakerProvider) Name() string { return p.inner.Name() }

func (p *CircuitBreakerProvider) State() gobreaker.State   { return p.cb.State() }
func (p *CircuitBreakerProvider) Counts() gobreaker.Counts { return p.cb.Counts() }
