package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"weatherdine/internal/domain"
)

var _ domain.LLMProvider = (*FailoverProvider)(nil)

// FailoverProvider walks a chain of providers, moving to the next one only
// when the previous failure is one another provider could get past.
type FailoverProvider struct {
	chain  []domain.LLMProvider
	logger *slog.Logger
}

func NewFailoverProvider(primary domain.LLMProvider, fallbacks []domain.LLMProvider, logger *slog.Logger) *FailoverProvider {
	chain := make([]domain.LLMProvider, 0, len(fallbacks)+1)
	chain = append(chain, primary)
	return &FailoverProvider{chain: append(chain, fallbacks...), logger: logger}
}

// canFailover: transient errors, an open breaker, and rejected credentials
// (keys are per provider). Context overflow and bad requests would fail
// everywhere.
func canFailover(err error) bool {
	return domain.IsRetryableError(err) ||
		errors.Is(err, domain.ErrCircuitOpen) ||
		errors.Is(err, domain.ErrAuthInvalid)
}

func (f *FailoverProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	var failures []error
	for i, p := range f.chain {
		resp, err := p.Chat(ctx, req)
		if err == nil {
			if i > 0 {
				f.logger.Info("failover succeeded", "provider", p.Name(), "attempt", i+1)
			}
			return resp, nil
		}
		stop := !canFailover(err) || ctx.Err() != nil
		if i == 0 && stop {
			return nil, err
		}
		failures = append(failures, fmt.Errorf("%s: %w", p.Name(), err))
		if stop {
			break
		}
		f.logger.Warn("llm provider failed, trying next", "provider", p.Name(), "error", err)
	}
	return nil, fmt.Errorf("all providers failed: %w", errors.Join(failures...))
}

func (f *FailoverProvider) Name() string {
	return f.chain[0].Name() + "+failover"
}
