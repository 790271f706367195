package gateway

import (
	"fmt"
	"io"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"
)

// metricsHandler returns an HTTP handler for GET /metrics in Prometheus text format.
func metricsHandler(deps HandlerDeps, startTime time.Time, metrics *Metrics, clients func() int) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		counter(w, "weatherdine_agent_runs_total", "Agent turns that produced a reply.", &metrics.AgentRunsTotal)
		counter(w, "weatherdine_agent_errors_total", "Agent turns that failed.", &metrics.AgentErrorsTotal)
		counter(w, "weatherdine_llm_calls_total", "Total LLM calls.", &metrics.LLMCallsTotal)
		counter(w, "weatherdine_tool_calls_total", "Total tool invocations.", &metrics.ToolCallsTotal)
		counter(w, "weatherdine_tool_errors_total", "Tool invocations that returned an error.", &metrics.ToolErrorsTotal)
		counter(w, "weatherdine_workflow_runs_completed_total", "Workflow runs that completed.", &metrics.WorkflowsCompleted)
		counter(w, "weatherdine_workflow_runs_failed_total", "Workflow runs that failed.", &metrics.WorkflowsFailed)
		counter(w, "weatherdine_schedule_fired_total", "Scheduled tasks fired.", &metrics.SchedulesFired)

		gauge(w, "weatherdine_agents_registered", "Number of catalog agents.", float64(len(deps.Agents.List())))
		gauge(w, "weatherdine_workflows_registered", "Number of registered workflows.", float64(len(deps.Workflows.List())))
		gauge(w, "weatherdine_gateway_clients", "Connected WebSocket clients.", float64(clients()))
		gauge(w, "weatherdine_uptime_seconds", "Seconds since the gateway started.", time.Since(startTime).Seconds())

		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)
		gauge(w, "go_goroutines", "Number of goroutines.", float64(runtime.NumGoroutine()))
		gauge(w, "go_memstats_alloc_bytes", "Bytes of allocated heap objects.", float64(mem.Alloc))
		gauge(w, "go_memstats_sys_bytes", "Total bytes of memory obtained from the OS.", float64(mem.Sys))
	}
}

func counter(w io.Writer, name, help string, v *atomic.Int64) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", name, help, name, name, v.Load())
}

func gauge(w io.Writer, name, help string, v float64) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %g\n", name, help, name, name, v)
}
