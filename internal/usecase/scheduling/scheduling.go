package scheduling

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"weatherdine/internal/domain"
	"weatherdine/internal/usecase/eventbus"
)

// runTimeout bounds a single scheduled workflow run.
const runTimeout = 5 * time.Minute

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// WorkflowRunner starts a workflow run.
type WorkflowRunner interface {
	Run(ctx context.Context, id string, input json.RawMessage) (*domain.WorkflowRun, error)
}

// ScheduledTask binds a workflow and its input to a schedule. Schedule is a
// five-field cron expression, a descriptor such as "@daily", or a Go
// duration like "30m".
type ScheduledTask struct {
	Name     string
	Schedule string
	Workflow string
	Input    json.RawMessage
	OneShot  bool
}

// TaskInfo describes a registered task and its next firing time.
type TaskInfo struct {
	Name     string    `json:"name"`
	Schedule string    `json:"schedule"`
	Workflow string    `json:"workflow"`
	Next     time.Time `json:"next,omitzero"`
}

type registered struct {
	ScheduledTask
	id cron.EntryID
}

// Scheduler fires workflow runs on cron or fixed-interval schedules. A task
// whose previous run is still going is skipped rather than stacked.
type Scheduler struct {
	cron   *cron.Cron
	runner WorkflowRunner
	bus    domain.EventBus
	logger *slog.Logger

	mu    sync.Mutex
	tasks map[string]*registered
	ctx   context.Context // nil while stopped
	stop  context.CancelFunc
}

// NewScheduler creates a stopped scheduler. bus may be nil.
func NewScheduler(runner WorkflowRunner, bus domain.EventBus, logger *slog.Logger) *Scheduler {
	cl := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelWarn))
	return &Scheduler{
		cron:   cron.New(cron.WithParser(cronParser), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		runner: runner,
		bus:    bus,
		logger: logger,
		tasks:  make(map[string]*registered),
	}
}

// AddTask registers task. Tasks may be added before or after Start.
func (s *Scheduler) AddTask(task ScheduledTask) error {
	switch {
	case task.Name == "":
		return errors.New("scheduler: task name is required")
	case task.Workflow == "":
		return fmt.Errorf("scheduler: task %q has no workflow", task.Name)
	}
	sched, err := ParseSchedule(task.Schedule)
	if err != nil {
		return fmt.Errorf("scheduler: task %q: %w", task.Name, err)
	}
	if len(task.Input) == 0 {
		task.Input = json.RawMessage(`{}`)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.tasks[task.Name]; dup {
		return fmt.Errorf("scheduler: task %q already exists", task.Name)
	}
	reg := &registered{ScheduledTask: task}
	reg.id = s.cron.Schedule(sched, cron.FuncJob(func() { s.fire(reg) }))
	s.tasks[task.Name] = reg

	s.logger.Info("task scheduled", "task", task.Name, "schedule", task.Schedule, "workflow", task.Workflow)
	return nil
}

func (s *Scheduler) fire(reg *registered) {
	if reg.OneShot {
		s.drop(reg)
	}

	s.mu.Lock()
	parent := s.ctx
	s.mu.Unlock()
	if parent == nil {
		return
	}
	ctx, cancel := context.WithTimeout(parent, runTimeout)
	defer cancel()

	eventbus.Emit(ctx, s.bus, domain.EventScheduleFired, map[string]string{
		"task":     reg.Name,
		"workflow": reg.Workflow,
	})

	start := time.Now()
	run, err := s.runner.Run(ctx, reg.Workflow, reg.Input)
	attrs := []any{"task", reg.Name, "workflow", reg.Workflow, "duration", time.Since(start)}
	switch {
	case err != nil:
		s.logger.Warn("scheduled run did not start", append(attrs, "error", err)...)
	case run.Status != domain.RunStatusCompleted:
		s.logger.Warn("scheduled run failed", append(attrs, "run_id", run.ID, "status", run.Status, "error", run.Error)...)
	default:
		s.logger.Info("scheduled run completed", append(attrs, "run_id", run.ID)...)
	}
}

// drop unregisters reg if it is still the task registered under its name.
func (s *Scheduler) drop(reg *registered) bool {
	s.mu.Lock()
	cur, ok := s.tasks[reg.Name]
	if ok && cur == reg {
		delete(s.tasks, reg.Name)
	}
	s.mu.Unlock()
	if !ok || cur != reg {
		return false
	}
	s.cron.Remove(reg.id)
	return true
}

// RemoveTask unregisters a task by name. A run already in progress finishes.
func (s *Scheduler) RemoveTask(name string) error {
	s.mu.Lock()
	reg, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok || !s.drop(reg) {
		return fmt.Errorf("scheduler: task %q not found", name)
	}
	s.logger.Info("task unscheduled", "task", name)
	return nil
}

// Tasks lists registered tasks sorted by name. Next is zero until Start.
func (s *Scheduler) Tasks() []TaskInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TaskInfo, 0, len(s.tasks))
	for _, reg := range s.tasks {
		out = append(out, TaskInfo{
			Name:     reg.Name,
			Schedule: reg.Schedule,
			Workflow: reg.Workflow,
			Next:     s.cron.Entry(reg.id).Next,
		})
	}
	slices.SortFunc(out, func(a, b TaskInfo) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

// NextRun returns when name fires next, or nil for an unknown task or a
// stopped scheduler.
func (s *Scheduler) NextRun(name string) *time.Time {
	s.mu.Lock()
	reg, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	next := s.cron.Entry(reg.id).Next
	if next.IsZero() {
		return nil
	}
	return &next
}

// Start begins firing tasks. Runs inherit ctx; cancelling it aborts them but
// leaves the schedule in place until Stop. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		return nil
	}
	s.ctx, s.stop = context.WithCancel(ctx)
	s.cron.Start()
	return nil
}

// Stop cancels in-flight runs and waits for them to return. It is safe to
// call on a scheduler that never started.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.ctx == nil {
		s.mu.Unlock()
		return nil
	}
	s.stop()
	s.ctx, s.stop = nil, nil
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	return nil
}

// ParseSchedule accepts a cron expression or a positive duration. Durations
// may be sub-second, which cron's own @every rounds away.
func ParseSchedule(spec string) (cron.Schedule, error) {
	if spec == "" {
		return nil, errors.New("empty schedule")
	}
	if sched, err := cronParser.Parse(spec); err == nil {
		return sched, nil
	}
	d, err := time.ParseDuration(spec)
	if err != nil {
		return nil, fmt.Errorf("schedule %q is neither a cron expression nor a duration", spec)
	}
	if d <= 0 {
		return nil, fmt.Errorf("schedule %q: duration must be positive", spec)
	}
	return every(d), nil
}

type every time.Duration

func (e every) Next(t time.Time) time.Time { return t.Add(time.Duration(e)) }
