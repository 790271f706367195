package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"weatherdine/internal/domain"
)

// SchemaValidatingTool rejects arguments that do not match the tool's
// parameter schema before the tool sees them. The model gets the violations
// back as a permanent failure and can correct its call.
type SchemaValidatingTool struct {
	domain.Tool
	schema *jsonschema.Schema
}

// WithSchemaValidation returns t unchanged when it declares no parameters.
func WithSchemaValidation(t domain.Tool) (domain.Tool, error) {
	raw := t.Schema().Parameters
	if len(raw) == 0 || string(raw) == "null" {
		return t, nil
	}
	schema, err := compileSchema(t.Name(), raw)
	if err != nil {
		return nil, err
	}
	return &SchemaValidatingTool{Tool: t, schema: schema}, nil
}

func compileSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	url := name + ".schema.json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("schema for %q: %w", name, err)
	}
	schema, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema for %q: %w", name, err)
	}
	return schema, nil
}

func (s *SchemaValidatingTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	var doc any
	if err := json.Unmarshal(params, &doc); err != nil {
		return ErrResult("invalid JSON: %v", err)
	}
	if err := s.schema.Validate(doc); err != nil {
		return ErrResult("invalid params for %s: %s", s.Name(), describeValidation(err))
	}
	return s.Tool.Execute(ctx, params)
}

// describeValidation flattens a jsonschema error tree into its leaf messages,
// e.g. "/maxResults: must be <= 20".
func describeValidation(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}
	var leaves []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			leaves = append(leaves, loc+": "+e.Message)
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return strings.Join(leaves, "; ")
}
