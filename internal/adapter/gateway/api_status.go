package gateway

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"weatherdine/internal/domain"
)

// StatusResponse is the JSON body returned by GET /api/status.
type StatusResponse struct {
	Service       string         `json:"service"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Agents        int            `json:"agents"`
	Workflows     int            `json:"workflows"`
	Clients       int            `json:"clients"`
	Tools         ToolStatus     `json:"tools"`
	Runs          WorkflowStatus `json:"runs"`
}

// ToolStatus holds tool usage stats.
type ToolStatus struct {
	Registered  int   `json:"registered"`
	CallsTotal  int64 `json:"calls_total"`
	ErrorsTotal int64 `json:"errors_total"`
}

// WorkflowStatus counts finished workflow runs.
type WorkflowStatus struct {
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Metrics tracks counters for the status API and Prometheus metrics.
type Metrics struct {
	AgentRunsTotal     atomic.Int64
	AgentErrorsTotal   atomic.Int64
	ToolCallsTotal     atomic.Int64
	ToolErrorsTotal    atomic.Int64
	LLMCallsTotal      atomic.Int64
	WorkflowsCompleted atomic.Int64
	WorkflowsFailed    atomic.Int64
	SchedulesFired     atomic.Int64
}

// NewMetrics subscribes the counters to bus. bus may be nil.
func NewMetrics(bus domain.EventBus) *Metrics {
	m := &Metrics{}
	if bus == nil {
		return m
	}
	count := func(t domain.EventType, c *atomic.Int64) {
		bus.Subscribe(t, func(context.Context, domain.Event) { c.Add(1) })
	}
	count(domain.EventAgentCompleted, &m.AgentRunsTotal)
	count(domain.EventAgentError, &m.AgentErrorsTotal)
	count(domain.EventLLMCallCompleted, &m.LLMCallsTotal)
	count(domain.EventWorkflowCompleted, &m.WorkflowsCompleted)
	count(domain.EventWorkflowFailed, &m.WorkflowsFailed)
	count(domain.EventScheduleFired, &m.SchedulesFired)
	bus.Subscribe(domain.EventToolCallCompleted, func(_ context.Context, e domain.Event) {
		m.ToolCallsTotal.Add(1)
		var p struct {
			IsError bool `json:"is_error"`
		}
		if e.DecodePayload(&p) == nil && p.IsError {
			m.ToolErrorsTotal.Add(1)
		}
	})
	return m
}

// statusHandler returns an HTTP handler for GET /api/status.
func statusHandler(deps HandlerDeps, startTime time.Time, metrics *Metrics, clients func() int) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		registered := 0
		if deps.Tools != nil {
			registered = len(deps.Tools.Schemas())
		}
		writeJSON(w, http.StatusOK, StatusResponse{
			Service:       "weatherdine",
			UptimeSeconds: int64(time.Since(startTime).Seconds()),
			Agents:        len(deps.Agents.List()),
			Workflows:     len(deps.Workflows.List()),
			Clients:       clients(),
			Tools: ToolStatus{
				Registered:  registered,
				CallsTotal:  metrics.ToolCallsTotal.Load(),
				ErrorsTotal: metrics.ToolErrorsTotal.Load(),
			},
			Runs: WorkflowStatus{
				Completed: metrics.WorkflowsCompleted.Load(),
				Failed:    metrics.WorkflowsFailed.Load(),
			},
		})
	}
}
