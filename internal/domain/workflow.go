package domain

import (
	"context"
	"encoding/json"
	"time"
)

// Workflow run and step statuses.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// WorkflowRun tracks the state of a single workflow execution.
type WorkflowRun struct {
	ID         string          `json:"id"`
	WorkflowID string          `json:"workflow_id"`
	Status     string          `json:"status"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	Steps      []StepResult    `json:"steps"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// StepResult records the outcome of executing a single step.
type StepResult struct {
	StepID   string          `json:"step_id"`
	Status   string          `json:"status"` // "completed", "failed"
	Output   json.RawMessage `json:"output,omitempty"`
	Error    string          `json:"error,omitempty"`
	Duration time.Duration   `json:"duration"`
}

// WorkflowStore persists workflow runs.
type WorkflowStore interface {
	SaveRun(ctx context.Context, run WorkflowRun) error
	GetRun(ctx context.Context, id string) (*WorkflowRun, error)
	// ListRuns returns up to limit runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]WorkflowRun, error)
	DeleteRun(ctx context.Context, id string) error
}
