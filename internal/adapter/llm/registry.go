package llm

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"weatherdine/internal/domain"
	"weatherdine/internal/infra/config"
)

// Registry holds named LLM providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]domain.LLMProvider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]domain.LLMProvider),
	}
}

// Register adds a provider. Returns error if name already registered.
func (r *Registry) Register(provider domain.LLMProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := provider.Name()
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("provider %q already registered", name)
	}
	r.providers[name] = provider
	return nil
}

// Get retrieves a provider by name.
func (r *Registry) Get(name string) (domain.LLMProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrProviderNotFound, name)
	}
	return p, nil
}

// List returns all registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BedrockFactory builds a Bedrock provider. It is nil unless the binary is
// built with the bedrock tag.
var BedrockFactory func(cfg config.ProviderConfig, logger *slog.Logger) (domain.LLMProvider, error)

// NewProvider builds the provider for cfg.Type.
func NewProvider(cfg config.ProviderConfig, logger *slog.Logger) (domain.LLMProvider, error) {
	switch cfg.Type {
	case "", "openai", "openrouter", "ollama":
		return NewOpenAIProvider(cfg, logger), nil
	case "bedrock":
		if BedrockFactory == nil {
			return nil, fmt.Errorf("provider %q: bedrock support requires building with -tags bedrock", cfg.Name)
		}
		return BedrockFactory(cfg, logger)
	default:
		return nil, fmt.Errorf("provider %q: unknown type %q", cfg.Name, cfg.Type)
	}
}

// BuildRegistry creates every configured provider, wrapping each in a circuit
// breaker when enabled. With failover enabled, the default provider is
// replaced by a FailoverProvider under the same name.
func BuildRegistry(cfg config.LLMConfig, logger *slog.Logger) (*Registry, error) {
	reg := NewRegistry()
	built := make(map[string]domain.LLMProvider, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		p, err := NewProvider(pc, logger)
		if err != nil {
			return nil, err
		}
		if cfg.CircuitBreaker.Enabled {
			p = NewCircuitBreakerProvider(p, cfg.CircuitBreaker, logger)
		}
		built[pc.Name] = p
	}

	if cfg.Failover.Enabled {
		if primary, ok := built[cfg.DefaultProvider]; ok {
			var fallbacks []domain.LLMProvider
			for _, name := range cfg.Failover.Fallbacks {
				if fb, ok := built[name]; ok && name != cfg.DefaultProvider {
					fallbacks = append(fallbacks, fb)
				}
			}
			built[cfg.DefaultProvider] = &namedProvider{
				LLMProvider: NewFailoverProvider(primary, fallbacks, logger),
				name:        cfg.DefaultProvider,
			}
		}
	}

	for _, p := range built {
		if err := reg.Register(p); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// namedProvider overrides the Name of a wrapped provider.
type namedProvider struct {
	domain.LLMProvider
	name string
}

func (n *namedProvider) Name() string { return n.name }
