package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType names an event as "<producer>.<what happened>". Gateway clients
// filter on these, either exactly or by producer prefix.
type EventType string

// Agent loop.
const (
	EventAgentStarted      EventType = "agent.started"
	EventAgentCompleted    EventType = "agent.completed"
	EventAgentError        EventType = "agent.error"
	EventLLMCallStarted    EventType = "llm.call.started"
	EventLLMCallCompleted  EventType = "llm.call.completed"
	EventToolCallStarted   EventType = "tool.call.started"
	EventToolCallCompleted EventType = "tool.call.completed"
	EventSessionSaved      EventType = "session.saved"
)

// Workflows and the scheduler that triggers them.
const (
	EventWorkflowStarted       EventType = "workflow.started"
	EventWorkflowStepCompleted EventType = "workflow.step.completed"
	EventWorkflowCompleted     EventType = "workflow.completed"
	EventWorkflowFailed        EventType = "workflow.failed"
	EventScheduleFired         EventType = "schedule.fired"
)

type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	ThreadID  string          `json:"thread_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// DecodePayload unmarshals the payload into v. An empty payload leaves v
// untouched.
func (e Event) DecodePayload(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, v)
}

type EventHandler func(ctx context.Context, event Event)

// EventBus fans events out to subscribers. Subscribe and SubscribeAll return
// a func that removes the handler; Close waits for handlers in flight and
// drops later publishes.
type EventBus interface {
	Publish(ctx context.Context, event Event)
	Subscribe(eventType EventType, handler EventHandler) func()
	SubscribeAll(handler EventHandler) func()
	Close()
}
