package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"weatherdine/internal/domain"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRunner counts runs per workflow and records the inputs it saw.
type fakeRunner struct {
	mu     sync.Mutex
	calls  map[string]int
	inputs []json.RawMessage
	status string
	err    error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{calls: make(map[string]int), status: domain.RunStatusCompleted}
}

func (r *fakeRunner) Run(_ context.Context, id string, input json.RawMessage) (*domain.WorkflowRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[id]++
	r.inputs = append(r.inputs, input)
	if r.err != nil {
		return nil, r.err
	}
	return &domain.WorkflowRun{ID: "run", WorkflowID: id, Status: r.status}, nil
}

func (r *fakeRunner) count(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[id]
}

type countingBus struct {
	fired atomic.Int32
}

func (b *countingBus) Publish(_ context.Context, e domain.Event) {
	if e.Type == domain.EventScheduleFired {
		b.fired.Add(1)
	}
}
func (b *countingBus) Subscribe(domain.EventType, domain.EventHandler) func() { return func() {} }
func (b *countingBus) SubscribeAll(domain.EventHandler) func()                { return func() {} }
func (b *countingBus) Close()                                                 {}

func TestSchedulerStartStop(t *testing.T) {
	s := NewScheduler(newFakeRunner(), nil, newTestLogger())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestSchedulerRunsWorkflow(t *testing.T) {
	runner := newFakeRunner()
	bus := &countingBus{}
	s := NewScheduler(runner, bus, newTestLogger())
	if err := s.AddTask(ScheduledTask{
		Name:     "lunch",
		Schedule: "50ms",
		Workflow: "restaurant-workflow",
		Input:    json.RawMessage(`{"location":"Lisbon"}`),
	}); err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	time.Sleep(200 * time.Millisecond)
	s.Stop()

	if c := runner.count("restaurant-workflow"); c < 1 {
		t.Fatalf("workflow ran %d times, expected at least 1", c)
	}
	if string(runner.inputs[0]) != `{"location":"Lisbon"}` {
		t.Errorf("input = %s", runner.inputs[0])
	}
	if bus.fired.Load() < 1 {
		t.Error("schedule.fired was not published")
	}
}

func TestSchedulerDefaultInput(t *testing.T) {
	runner := newFakeRunner()
	s := NewScheduler(runner, nil, newTestLogger())
	s.AddTask(ScheduledTask{Name: "bare", Schedule: "50ms", Workflow: "w", OneShot: true})

	s.Start(context.Background())
	time.Sleep(150 * time.Millisecond)
	s.Stop()

	if len(runner.inputs) != 1 || string(runner.inputs[0]) != `{}` {
		t.Errorf("inputs = %q, want one {}", runner.inputs)
	}
}

func TestSchedulerAddTaskValidation(t *testing.T) {
	s := NewScheduler(newFakeRunner(), nil, newTestLogger())

	tests := []struct {
		name string
		task ScheduledTask
	}{
		{"no name", ScheduledTask{Schedule: "1h", Workflow: "w"}},
		{"no workflow", ScheduledTask{Name: "x", Schedule: "1h"}},
		{"bad schedule", ScheduledTask{Name: "x", Schedule: "not-valid", Workflow: "w"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.AddTask(tt.task); err == nil {
				t.Error("expected error")
			}
		})
	}

	if err := s.AddTask(ScheduledTask{Name: "dup", Schedule: "1h", Workflow: "w"}); err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if err := s.AddTask(ScheduledTask{Name: "dup", Schedule: "1h", Workflow: "w"}); err == nil {
		t.Error("expected error for duplicate task name")
	}
}

func TestSchedulerContextCancellation(t *testing.T) {
	runner := newFakeRunner()
	s := NewScheduler(runner, nil, newTestLogger())
	s.AddTask(ScheduledTask{Name: "ctx-task", Schedule: "50ms", Workflow: "w"})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	time.Sleep(150 * time.Millisecond)
	cancel()
	s.Stop()

	countAfterCancel := runner.count("w")
	time.Sleep(100 * time.Millisecond)

	if runner.count("w") != countAfterCancel {
		t.Error("task continued after context cancellation")
	}
}

func TestSchedulerRunFailuresAreSurvived(t *testing.T) {
	tests := []struct {
		name   string
		runner *fakeRunner
	}{
		{"run error", &fakeRunner{calls: map[string]int{}, err: errors.New("limit reached")}},
		{"failed run", &fakeRunner{calls: map[string]int{}, status: domain.RunStatusFailed}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScheduler(tt.runner, nil, newTestLogger())
			s.AddTask(ScheduledTask{Name: "failing", Schedule: "50ms", Workflow: "w"})

			s.Start(context.Background())
			time.Sleep(260 * time.Millisecond)
			if err := s.Stop(); err != nil {
				t.Fatalf("Stop: %v", err)
			}
			if c := tt.runner.count("w"); c < 2 {
				t.Errorf("ran %d times, want the schedule to keep firing", c)
			}
		})
	}
}

func TestSchedulerDoubleStop(t *testing.T) {
	s := NewScheduler(newFakeRunner(), nil, newTestLogger())
	s.Start(context.Background())

	if err := s.Stop(); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestSchedulerStopWithoutStart(t *testing.T) {
	s := NewScheduler(newFakeRunner(), nil, newTestLogger())
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop without start: %v", err)
	}
}

func TestSchedulerOneShot(t *testing.T) {
	runner := newFakeRunner()
	s := NewScheduler(runner, nil, newTestLogger())
	if err := s.AddTask(ScheduledTask{Name: "one-shot", Schedule: "50ms", Workflow: "w", OneShot: true}); err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	s.Start(context.Background())
	time.Sleep(300 * time.Millisecond)
	s.Stop()

	if c := runner.count("w"); c != 1 {
		t.Errorf("one-shot fired %d times, expected exactly 1", c)
	}
	if len(s.Tasks()) != 0 {
		t.Error("one-shot task still registered")
	}
}

func TestSchedulerRemoveTask(t *testing.T) {
	runner := newFakeRunner()
	s := NewScheduler(runner, nil, newTestLogger())
	s.AddTask(ScheduledTask{Name: "removable", Schedule: "50ms", Workflow: "w"})

	s.Start(context.Background())
	time.Sleep(100 * time.Millisecond)

	if err := s.RemoveTask("removable"); err != nil {
		t.Fatalf("RemoveTask: %v", err)
	}
	countAfterRemove := runner.count("w")
	time.Sleep(150 * time.Millisecond)
	s.Stop()

	if runner.count("w") > countAfterRemove+1 {
		t.Error("task continued firing after removal")
	}
	if err := s.RemoveTask("removable"); err == nil {
		t.Error("expected error removing a missing task")
	}
}

func TestSchedulerTasksAndNextRun(t *testing.T) {
	s := NewScheduler(newFakeRunner(), nil, newTestLogger())
	s.AddTask(ScheduledTask{Name: "b-hourly", Schedule: "1h", Workflow: "weather-workflow"})
	s.AddTask(ScheduledTask{Name: "a-daily", Schedule: "0 12 * * *", Workflow: "restaurant-workflow"})

	s.Start(context.Background())
	defer s.Stop()

	tasks := s.Tasks()
	if len(tasks) != 2 || tasks[0].Name != "a-daily" || tasks[1].Workflow != "weather-workflow" {
		t.Fatalf("Tasks = %+v", tasks)
	}

	next := s.NextRun("b-hourly")
	if next == nil {
		t.Fatal("expected non-nil next run time")
	}
	if next.Before(time.Now()) {
		t.Error("next run should be in the future")
	}
	if s.NextRun("nope") != nil {
		t.Error("expected nil for unknown task")
	}
}

func TestParseSchedule(t *testing.T) {
	valid := []string{"*/5 * * * *", "@every 30m", "@daily", "30m", "100ms"}
	for _, in := range valid {
		t.Run(in, func(t *testing.T) {
			sched, err := ParseSchedule(in)
			if err != nil {
				t.Fatalf("ParseSchedule(%q): %v", in, err)
			}
			if sched == nil {
				t.Fatal("expected non-nil schedule")
			}
		})
	}

	invalid := []string{"", "not-a-schedule", "-5m", "0s"}
	for _, in := range invalid {
		t.Run("invalid "+in, func(t *testing.T) {
			if _, err := ParseSchedule(in); err == nil {
				t.Errorf("expected error for %q", in)
			}
		})
	}
}

func TestConstantDelay(t *testing.T) {
	sched, _ := ParseSchedule("250ms")
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	if got := sched.Next(now); !got.Equal(now.Add(250 * time.Millisecond)) {
		t.Errorf("Next = %v", got)
	}
}
