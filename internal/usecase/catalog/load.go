package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"weatherdine/internal/domain"
)

// File is the on-disk shape of an agents.yaml catalog.
type File struct {
	Agents      []domain.AgentDefinition `yaml:"agents"`
	Collections []domain.AgentCollection `yaml:"collections"`
}

// Load reads a catalog file. A missing file yields an empty catalog.
func Load(path string) (*File, error) {
	if path == "" {
		return &File{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &File{}, nil
		}
		return nil, fmt.Errorf("read agent catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates catalog YAML.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, domain.NewSubSystemError("agent", "catalog.Parse", domain.ErrInvalidInput, err.Error())
	}
	for i, a := range f.Agents {
		if a.ID == "" {
			return nil, domain.NewSubSystemError("agent", "catalog.Parse", domain.ErrInvalidInput,
				fmt.Sprintf("agents[%d] has no id", i))
		}
		if a.Instructions == "" {
			return nil, domain.NewSubSystemError("agent", "catalog.Parse", domain.ErrInvalidInput,
				fmt.Sprintf("agent %q has no instructions", a.ID))
		}
		if a.Name == "" {
			f.Agents[i].Name = a.ID
		}
	}
	for i, c := range f.Collections {
		if c.ID == "" {
			return nil, domain.NewSubSystemError("agent", "catalog.Parse", domain.ErrInvalidInput,
				fmt.Sprintf("collections[%d] has no id", i))
		}
	}
	return &f, nil
}

// MergeAgents overlays overrides on base. A matching ID replaces the base
// entry in place and a new ID is appended.
func MergeAgents(base, overrides []domain.AgentDefinition) []domain.AgentDefinition {
	return merge(base, overrides, func(d domain.AgentDefinition) string { return d.ID })
}

// MergeCollections is MergeAgents for collections.
func MergeCollections(base, overrides []domain.AgentCollection) []domain.AgentCollection {
	return merge(base, overrides, func(c domain.AgentCollection) string { return c.ID })
}

func merge[T any](base, overrides []T, id func(T) string) []T {
	out := make([]T, len(base), len(base)+len(overrides))
	copy(out, base)
	index := make(map[string]int, len(out))
	for i, v := range out {
		index[id(v)] = i
	}
	for _, v := range overrides {
		if i, ok := index[id(v)]; ok {
			out[i] = v
			continue
		}
		index[id(v)] = len(out)
		out = append(out, v)
	}
	return out
}
