package tool

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"weatherdine/internal/domain"
)

// RegistryOption configures how a Registry wraps the tools it is given.
type RegistryOption func(*Registry)

// RateLimit caps each registered tool at perMinute calls per minute.
func RateLimit(perMinute int) RegistryOption {
	return func(r *Registry) { r.perMinute = perMinute }
}

// Registry holds tools by name and serves their schemas to agents.
//
// With a logger, Register checks arguments against each tool's JSON Schema
// before the call reaches the tool; a schema that does not compile is logged
// and the tool is kept without the check.
type Registry struct {
	mu        sync.RWMutex
	tools     map[string]domain.Tool
	schemas   []domain.ToolSchema // sorted by name, rebuilt on Register
	logger    *slog.Logger
	perMinute int
}

func NewRegistry(logger *slog.Logger, opts ...RegistryOption) *Registry {
	r := &Registry{tools: make(map[string]domain.Tool), logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds tools in order and stops at the first duplicate name.
func (r *Registry) Register(tools ...domain.Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	defer r.rebuildSchemas()

	for _, t := range tools {
		name := t.Name()
		if _, exists := r.tools[name]; exists {
			return fmt.Errorf("tool %q already registered", name)
		}
		r.tools[name] = r.wrap(t)
	}
	return nil
}

// wrap applies the rate limit innermost so that calls rejected by schema
// validation do not use up the budget.
func (r *Registry) wrap(t domain.Tool) domain.Tool {
	t = WithRateLimit(t, r.perMinute)
	if r.logger == nil {
		return t
	}
	validated, err := WithSchemaValidation(t)
	if err != nil {
		r.logger.Warn("schema validation disabled for tool", "tool", t.Name(), "error", err)
		return t
	}
	return validated
}

func (r *Registry) rebuildSchemas() {
	r.schemas = r.schemas[:0]
	for _, t := range r.tools {
		r.schemas = append(r.schemas, t.Schema())
	}
	slices.SortFunc(r.schemas, func(a, b domain.ToolSchema) int { return strings.Compare(a.Name, b.Name) })
}

func (r *Registry) Get(name string) (domain.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrToolNotFound, name)
	}
	return t, nil
}

// Names lists registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.schemas))
	for i, s := range r.schemas {
		names[i] = s.Name
	}
	return names
}

// List returns the registered tools sorted by name.
func (r *Registry) List() []domain.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]domain.Tool, len(r.schemas))
	for i, s := range r.schemas {
		tools[i] = r.tools[s.Name]
	}
	return tools
}

// Schemas returns a copy of the tool schemas, sorted by name.
func (r *Registry) Schemas() []domain.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.schemas)
}

// Subset returns a registry limited to names, sharing the already wrapped
// tools. An unknown name is an error.
func (r *Registry) Subset(names []string) (*Registry, error) {
	sub := &Registry{tools: make(map[string]domain.Tool, len(names))}
	for _, n := range names {
		t, err := r.Get(n)
		if err != nil {
			return nil, err
		}
		sub.tools[n] = t
	}
	sub.rebuildSchemas()
	return sub, nil
}
