package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"weatherdine/internal/domain"
	"weatherdine/internal/infra/tracer"
	"weatherdine/internal/usecase/eventbus"
)

const defaultTimeout = 2 * time.Minute

// ManagerConfig holds configuration for the workflow engine.
type ManagerConfig struct {
	Timeout    time.Duration
	MaxRunning int
}

// Manager registers workflows, runs them, and records every run.
type Manager struct {
	store  domain.WorkflowStore
	cfg    ManagerConfig
	bus    domain.EventBus
	logger *slog.Logger
	now    func() time.Time

	mu        sync.RWMutex
	workflows map[string]*Workflow
	running   atomic.Int32
}

// NewManager creates a new workflow engine. bus may be nil.
func NewManager(store domain.WorkflowStore, cfg ManagerConfig, bus domain.EventBus, logger *slog.Logger) *Manager {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRunning <= 0 {
		cfg.MaxRunning = 1
	}
	return &Manager{
		store:     store,
		cfg:       cfg,
		bus:       bus,
		logger:    logger,
		now:       time.Now,
		workflows: make(map[string]*Workflow),
	}
}

// Register compiles wf and makes it runnable by ID.
func (m *Manager) Register(wf Workflow) error {
	if err := wf.compile(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workflows[wf.ID]; ok {
		return domain.NewSubSystemError("workflow", "Manager.Register", domain.ErrDuplicate, wf.ID)
	}
	m.workflows[wf.ID] = &wf
	m.logger.Debug("workflow registered", "workflow", wf.ID, "steps", len(wf.Steps))
	return nil
}

// List returns the registered workflows sorted by ID.
func (m *Manager) List() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Info, 0, len(m.workflows))
	for _, wf := range m.workflows {
		out = append(out, wf.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Has reports whether a workflow with id is registered.
func (m *Manager) Has(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.workflows[id]
	return ok
}

// Run executes the workflow id with input and returns the finished run.
// Step failures are recorded on the run and do not produce an error;
// the error return is reserved for runs that could not start.
func (m *Manager) Run(ctx context.Context, id string, input json.RawMessage) (*domain.WorkflowRun, error) {
	m.mu.RLock()
	wf, ok := m.workflows[id]
	m.mu.RUnlock()
	if !ok {
		return nil, domain.NewSubSystemError("workflow", "Manager.Run", domain.ErrNotFound, id)
	}

	if n := m.running.Add(1); int(n) > m.cfg.MaxRunning {
		m.running.Add(-1)
		return nil, domain.NewSubSystemError("workflow", "Manager.Run", domain.ErrLimitReached,
			fmt.Sprintf("%d/%d", n-1, m.cfg.MaxRunning))
	}
	defer m.running.Add(-1)

	ctx, span := tracer.StartSpan(ctx, "workflow.run")
	defer span.End()
	span.SetAttributes(tracer.StringAttr("workflow.id", id))

	now := m.now()
	run := &domain.WorkflowRun{
		ID:         generateWorkflowID(now),
		WorkflowID: id,
		Status:     domain.RunStatusRunning,
		Input:      input,
		Steps:      make([]domain.StepResult, 0, len(wf.Steps)),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	ctx = domain.ContextWithRunID(ctx, run.ID)
	span.SetAttributes(tracer.StringAttr("workflow.run_id", run.ID))

	m.save(ctx, run)
	m.emitEvent(ctx, domain.EventWorkflowStarted, map[string]string{
		"run_id":   run.ID,
		"workflow": id,
	})

	runCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	sc := StepContext{
		RunID:         run.ID,
		WorkflowInput: input,
		Logger:        m.logger.With("workflow", id, "run_id", run.ID),
	}
	output, steps, err := wf.execute(runCtx, sc, func(res domain.StepResult) {
		if res.Status != domain.RunStatusCompleted {
			return
		}
		m.emitEvent(ctx, domain.EventWorkflowStepCompleted, map[string]any{
			"run_id":      run.ID,
			"workflow":    id,
			"step_id":     res.StepID,
			"duration_ms": res.Duration.Milliseconds(),
		})
	})
	run.Steps = steps
	run.UpdatedAt = m.now()

	if err != nil {
		if ctxErr := runCtx.Err(); ctxErr != nil && ctx.Err() == nil {
			err = contextError("Manager.Run", ctxErr)
		}
		run.Status = domain.RunStatusFailed
		run.Error = err.Error()
		m.save(ctx, run)
		m.logger.Warn("workflow failed", "workflow", id, "run_id", run.ID, "error", err)
		m.emitEvent(ctx, domain.EventWorkflowFailed, map[string]string{
			"run_id":   run.ID,
			"workflow": id,
			"error":    run.Error,
		})
		tracer.RecordError(span, err)
		return run, nil
	}

	run.Status = domain.RunStatusCompleted
	run.Output = output
	m.save(ctx, run)
	m.logger.Info("workflow completed", "workflow", id, "run_id", run.ID,
		"duration", run.UpdatedAt.Sub(run.CreatedAt))
	m.emitEvent(ctx, domain.EventWorkflowCompleted, map[string]string{
		"run_id":   run.ID,
		"workflow": id,
	})
	tracer.SetOK(span)
	return run, nil
}

// GetRun returns a workflow run by ID.
func (m *Manager) GetRun(ctx context.Context, runID string) (*domain.WorkflowRun, error) {
	return m.store.GetRun(ctx, runID)
}

// ListRuns returns recent workflow runs, newest first.
func (m *Manager) ListRuns(ctx context.Context, limit int) ([]domain.WorkflowRun, error) {
	return m.store.ListRuns(ctx, limit)
}

// save persists run even when ctx is already done.
func (m *Manager) save(ctx context.Context, run *domain.WorkflowRun) {
	if err := m.store.SaveRun(context.WithoutCancel(ctx), *run); err != nil {
		m.logger.Warn("failed to save workflow run", "run_id", run.ID, "error", err)
	}
}

func (m *Manager) emitEvent(ctx context.Context, eventType domain.EventType, payload any) {
	eventbus.Emit(ctx, m.bus, eventType, payload)
}

func generateWorkflowID(t time.Time) string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
