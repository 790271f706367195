package domain

// MemorySpec configures per-agent conversation memory.
type MemorySpec struct {
	Enabled      bool   `json:"enabled"                 yaml:"enabled"`
	Path         string `json:"path,omitempty"          yaml:"path,omitempty"`
	LastMessages int    `json:"last_messages,omitempty" yaml:"last_messages,omitempty"`
}

// AgentDefinition describes a named agent: its prompt, model, and tools.
type AgentDefinition struct {
	ID           string     `json:"id"                  yaml:"id"`
	Name         string     `json:"name"                yaml:"name"`
	Description  string     `json:"description"         yaml:"description"`
	Instructions string     `json:"instructions"        yaml:"instructions"`
	Model        string     `json:"model,omitempty"     yaml:"model,omitempty"`
	Provider     string     `json:"provider,omitempty"  yaml:"provider,omitempty"`
	Tools        []string   `json:"tools,omitempty"     yaml:"tools,omitempty"`
	Memory       MemorySpec `json:"memory"              yaml:"memory"`
	UseCases     []string   `json:"use_cases,omitempty" yaml:"use_cases,omitempty"`
	MaxIter      int        `json:"max_iter,omitempty"  yaml:"max_iter,omitempty"`
}

// AgentCollection groups agents and workflows that are deployed together.
type AgentCollection struct {
	ID          string   `json:"id"          yaml:"id"`
	Name        string   `json:"name"        yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Agents      []string `json:"agents"      yaml:"agents"`
	Workflows   []string `json:"workflows"   yaml:"workflows"`
}

// AgentStatus is a read-only snapshot of a registered agent.
type AgentStatus struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Provider string   `json:"provider"`
	Model    string   `json:"model"`
	Tools    []string `json:"tools,omitempty"`
	Memory   bool     `json:"memory"`
}
