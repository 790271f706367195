package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kaptinlin/jsonschema"

	"weatherdine/internal/domain"
)

// errNoInput is returned when a step is handed nil or empty input.
const errNoInput = "Input data not found"

// StepContext carries run-wide values into every step.
type StepContext struct {
	RunID         string
	WorkflowInput json.RawMessage
	Logger        *slog.Logger
}

// StepFunc executes a single step. input is the previous step's output, or
// the workflow input for the first step. The returned value is marshalled to
// JSON and validated against the step's output schema.
type StepFunc func(ctx context.Context, sc StepContext, input json.RawMessage) (any, error)

// Step is one unit of a workflow.
type Step struct {
	ID           string
	Description  string
	InputSchema  string
	OutputSchema string
	Run          StepFunc

	in, out *jsonschema.Schema
}

// Workflow is an ordered, linear chain of steps.
type Workflow struct {
	ID           string
	Description  string
	InputSchema  string
	OutputSchema string
	Steps        []Step

	in, out *jsonschema.Schema
}

// Info is the listing view of a workflow.
type Info struct {
	ID          string     `json:"id"`
	Description string     `json:"description,omitempty"`
	Steps       []StepInfo `json:"steps"`
}

// StepInfo is the listing view of a step.
type StepInfo struct {
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`
}

// Info returns the listing view of wf.
func (wf *Workflow) Info() Info {
	steps := make([]StepInfo, len(wf.Steps))
	for i, s := range wf.Steps {
		steps[i] = StepInfo{ID: s.ID, Description: s.Description}
	}
	return Info{ID: wf.ID, Description: wf.Description, Steps: steps}
}

// compile validates the workflow shape and compiles every schema once.
func (wf *Workflow) compile() error {
	if wf.ID == "" {
		return domain.NewSubSystemError("workflow", "Workflow.compile", domain.ErrInvalidInput, "workflow has no id")
	}
	if len(wf.Steps) == 0 {
		return domain.NewSubSystemError("workflow", "Workflow.compile", domain.ErrInvalidInput,
			fmt.Sprintf("workflow %q has no steps", wf.ID))
	}

	var err error
	if wf.in, err = compileSchema(wf.InputSchema); err != nil {
		return fmt.Errorf("workflow %q input schema: %w", wf.ID, err)
	}
	if wf.out, err = compileSchema(wf.OutputSchema); err != nil {
		return fmt.Errorf("workflow %q output schema: %w", wf.ID, err)
	}

	seen := make(map[string]bool, len(wf.Steps))
	for i := range wf.Steps {
		s := &wf.Steps[i]
		if s.ID == "" {
			return domain.NewSubSystemError("workflow", "Workflow.compile", domain.ErrInvalidInput,
				fmt.Sprintf("step[%d] has no id", i))
		}
		if seen[s.ID] {
			return domain.NewSubSystemError("workflow", "Workflow.compile", domain.ErrInvalidInput,
				fmt.Sprintf("duplicate step id %q", s.ID))
		}
		seen[s.ID] = true
		if s.Run == nil {
			return domain.NewSubSystemError("workflow", "Workflow.compile", domain.ErrInvalidInput,
				fmt.Sprintf("step %q has no run function", s.ID))
		}
		if s.in, err = compileSchema(s.InputSchema); err != nil {
			return fmt.Errorf("step %q input schema: %w", s.ID, err)
		}
		if s.out, err = compileSchema(s.OutputSchema); err != nil {
			return fmt.Errorf("step %q output schema: %w", s.ID, err)
		}
	}
	return nil
}

func compileSchema(src string) (*jsonschema.Schema, error) {
	if src == "" {
		return nil, nil
	}
	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile([]byte(src))
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return schema, nil
}

// validate checks raw against schema. A nil schema accepts anything.
func validate(schema *jsonschema.Schema, raw json.RawMessage) error {
	if schema == nil {
		return nil
	}
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	result := schema.Validate(data)
	if !result.IsValid() {
		return fmt.Errorf("%s", result.Error())
	}
	return nil
}

func isEmptyInput(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// stepObserver is notified after each step finishes.
type stepObserver func(domain.StepResult)

// execute runs the steps of wf in order, feeding each step the output of
// the previous one. It stops at the first failure. The returned results
// include the failed step.
func (wf *Workflow) execute(ctx context.Context, sc StepContext, observe stepObserver) (json.RawMessage, []domain.StepResult, error) {
	if isEmptyInput(sc.WorkflowInput) {
		return nil, nil, domain.NewSubSystemError("workflow", "Workflow.execute", domain.ErrInvalidInput, errNoInput)
	}
	if err := validate(wf.in, sc.WorkflowInput); err != nil {
		return nil, nil, domain.NewSubSystemError("workflow", "Workflow.execute", domain.ErrInvalidInput,
			fmt.Sprintf("workflow input: %v", err))
	}

	results := make([]domain.StepResult, 0, len(wf.Steps))
	current := sc.WorkflowInput
	for i := range wf.Steps {
		step := &wf.Steps[i]
		if err := ctx.Err(); err != nil {
			return nil, results, contextError("Workflow.execute", err)
		}

		start := time.Now()
		out, err := step.execute(ctx, sc, current)
		res := domain.StepResult{
			StepID:   step.ID,
			Status:   domain.RunStatusCompleted,
			Output:   out,
			Duration: time.Since(start),
		}
		if err != nil {
			res.Status = domain.RunStatusFailed
			res.Error = err.Error()
		}
		results = append(results, res)
		if observe != nil {
			observe(res)
		}
		if err != nil {
			return nil, results, err
		}
		current = out
	}

	if err := validate(wf.out, current); err != nil {
		return nil, results, domain.NewSubSystemError("workflow", "Workflow.execute", domain.ErrInvalidInput,
			fmt.Sprintf("workflow output: %v", err))
	}
	return current, results, nil
}

func (s *Step) execute(ctx context.Context, sc StepContext, input json.RawMessage) (json.RawMessage, error) {
	op := "step." + s.ID
	if isEmptyInput(input) {
		return nil, domain.NewSubSystemError("workflow", op, domain.ErrInvalidInput, errNoInput)
	}
	if err := validate(s.in, input); err != nil {
		return nil, domain.NewSubSystemError("workflow", op, domain.ErrInvalidInput,
			fmt.Sprintf("input: %v", err))
	}

	v, err := s.Run(ctx, sc, input)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, contextError(op, ctxErr)
		}
		return nil, domain.WrapOp(op, err)
	}

	out, err := json.Marshal(v)
	if err != nil {
		return nil, domain.NewSubSystemError("workflow", op, domain.ErrInvalidInput,
			fmt.Sprintf("marshal output: %v", err))
	}
	if err := validate(s.out, out); err != nil {
		return out, domain.NewSubSystemError("workflow", op, domain.ErrInvalidInput,
			fmt.Sprintf("output: %v", err))
	}
	return out, nil
}

func contextError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewSubSystemError("workflow", op, domain.ErrTimeout, "workflow timed out")
	}
	return domain.WrapOp(op, err)
}

// decodeInput unmarshals a step's input into T.
func decodeInput[T any](raw json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, domain.NewDomainError("decodeInput", domain.ErrInvalidInput, err.Error())
	}
	return v, nil
}
