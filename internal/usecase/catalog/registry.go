package catalog

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"weatherdine/internal/domain"
	"weatherdine/internal/usecase"
)

const memoryPathInMemory = ":memory:"

// ProviderSource looks up LLM providers by name.
type ProviderSource interface {
	Get(name string) (domain.LLMProvider, error)
}

// MemoryOptions controls where agent conversations are stored.
type MemoryOptions struct {
	Enabled     bool
	DataDir     string
	DefaultPath string
	// Overrides maps agent ID to a database path.
	Overrides map[string]string
}

// Deps holds what the registry needs to build runnable agents.
type Deps struct {
	Providers       ProviderSource
	DefaultProvider string
	// SelectTools returns an executor limited to names; an unknown name is an error.
	SelectTools func(names []string) (domain.ToolExecutor, error)
	// OpenStore opens (or reuses) the conversation store at path.
	OpenStore func(path string) (domain.ConversationStore, error)
	Memory    MemoryOptions
	Counter   usecase.TokenCounter
	Bus       domain.EventBus
	Logger    *slog.Logger

	MaxIterations int
	Timeout       time.Duration
	LastMessages  int
	MaxTokens     int
}

// AgentInstance is a runnable agent together with its definition.
type AgentInstance struct {
	*usecase.Agent
	Definition domain.AgentDefinition
	Status     domain.AgentStatus
	MemoryPath string
}

// Collection is an agent collection resolved to its instances.
type Collection struct {
	domain.AgentCollection
	Instances []*AgentInstance
}

// Registry owns the runnable agents and collections.
type Registry struct {
	order       []string
	agents      map[string]*AgentInstance
	collections []domain.AgentCollection
}

// NewRegistry builds an instance for every definition. Construction fails on
// an unknown provider, an unknown tool, or a collection that references an
// unknown agent.
func NewRegistry(defs []domain.AgentDefinition, collections []domain.AgentCollection, deps Deps) (*Registry, error) {
	r := &Registry{
		agents:      make(map[string]*AgentInstance, len(defs)),
		collections: collections,
	}
	for _, def := range defs {
		if _, ok := r.agents[def.ID]; ok {
			return nil, domain.NewSubSystemError("agent", "catalog.NewRegistry", domain.ErrDuplicate, def.ID)
		}
		inst, err := build(def, deps)
		if err != nil {
			return nil, fmt.Errorf("agent %q: %w", def.ID, err)
		}
		r.agents[def.ID] = inst
		r.order = append(r.order, def.ID)
	}
	for _, c := range collections {
		for _, id := range c.Agents {
			if _, ok := r.agents[id]; !ok {
				return nil, domain.NewSubSystemError("agent", "catalog.NewRegistry", domain.ErrNotFound,
					fmt.Sprintf("collection %q references agent %q", c.ID, id))
			}
		}
	}
	return r, nil
}

func build(def domain.AgentDefinition, deps Deps) (*AgentInstance, error) {
	providerName := def.Provider
	if providerName == "" {
		providerName = deps.DefaultProvider
	}
	provider, err := deps.Providers.Get(providerName)
	if err != nil {
		return nil, err
	}

	var tools domain.ToolExecutor
	if len(def.Tools) > 0 {
		if deps.SelectTools == nil {
			return nil, domain.NewDomainError("catalog.build", domain.ErrToolNotFound, "no tools available")
		}
		if tools, err = deps.SelectTools(def.Tools); err != nil {
			return nil, err
		}
	}

	var (
		store      domain.ConversationStore
		memoryPath string
	)
	window := deps.LastMessages
	if def.Memory.LastMessages > 0 {
		window = def.Memory.LastMessages
	}
	if deps.Memory.Enabled && def.Memory.Enabled && deps.OpenStore != nil {
		memoryPath = resolveMemoryPath(def, deps.Memory)
		if store, err = deps.OpenStore(memoryPath); err != nil {
			return nil, domain.NewSubSystemError("memory", "catalog.build", domain.ErrMemoryStore, err.Error())
		}
	}

	cb := usecase.NewContextBuilder(def.Instructions, def.Model, window)
	if deps.Counter != nil && deps.MaxTokens > 0 {
		cb.SetTokenBudget(deps.Counter, deps.MaxTokens)
	}

	maxIter := deps.MaxIterations
	if def.MaxIter > 0 {
		maxIter = def.MaxIter
	}
	logger := deps.Logger.With("agent", def.ID)

	agent := usecase.NewAgent(usecase.AgentDeps{
		ID:             def.ID,
		LLM:            provider,
		Tools:          tools,
		Store:          store,
		ContextBuilder: cb,
		Bus:            deps.Bus,
		Logger:         logger,
		MaxIterations:  maxIter,
		HistoryLimit:   window,
		Timeout:        deps.Timeout,
	})

	model := def.Model
	if model == "" {
		model = "default"
	}
	return &AgentInstance{
		Agent:      agent,
		Definition: def,
		MemoryPath: memoryPath,
		Status: domain.AgentStatus{
			ID:       def.ID,
			Name:     def.Name,
			Provider: provider.Name(),
			Model:    model,
			Tools:    def.Tools,
			Memory:   store != nil,
		},
	}, nil
}

// resolveMemoryPath picks the database for def: a configured override first,
// then the definition's own path, then the default. Relative paths live
// under DataDir.
func resolveMemoryPath(def domain.AgentDefinition, opts MemoryOptions) string {
	path := opts.Overrides[def.ID]
	if path == "" {
		path = def.Memory.Path
	}
	if path == "" {
		path = opts.DefaultPath
	}
	if path == memoryPathInMemory || filepath.IsAbs(path) || opts.DataDir == "" {
		return path
	}
	return filepath.Join(opts.DataDir, path)
}

// Get returns the agent with id.
func (r *Registry) Get(id string) (*AgentInstance, error) {
	inst, ok := r.agents[id]
	if !ok {
		return nil, domain.NewSubSystemError("agent", "Registry.Get", domain.ErrNotFound, id)
	}
	return inst, nil
}

// List returns the status of every agent in catalog order.
func (r *Registry) List() []domain.AgentStatus {
	out := make([]domain.AgentStatus, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.agents[id].Status)
	}
	return out
}

// Definitions returns every agent definition in catalog order.
func (r *Registry) Definitions() []domain.AgentDefinition {
	out := make([]domain.AgentDefinition, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.agents[id].Definition)
	}
	return out
}

// Collections returns the collection definitions.
func (r *Registry) Collections() []domain.AgentCollection {
	return r.collections
}

// Collection resolves the collection id to its agent instances.
func (r *Registry) Collection(id string) (*Collection, error) {
	for _, c := range r.collections {
		if c.ID != id {
			continue
		}
		out := &Collection{AgentCollection: c, Instances: make([]*AgentInstance, 0, len(c.Agents))}
		for _, agentID := range c.Agents {
			out.Instances = append(out.Instances, r.agents[agentID])
		}
		return out, nil
	}
	return nil, domain.NewSubSystemError("agent", "Registry.Collection", domain.ErrNotFound, id)
}
