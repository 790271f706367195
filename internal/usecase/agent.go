package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"weatherdine/internal/domain"
	"weatherdine/internal/infra/tracer"
	"weatherdine/internal/usecase/eventbus"
)

// Recovery loop constants.
const (
	maxLLMAttempts = 3
	baseRetryDelay = 500 * time.Millisecond
	maxRetryDelay  = 10 * time.Second

	defaultMaxIterations = 10
)

// AgentDeps holds injected dependencies for the agent.
type AgentDeps struct {
	ID             string
	LLM            domain.LLMProvider
	Tools          domain.ToolExecutor      // optional, nil = no tools
	Store          domain.ConversationStore // optional, nil = memory disabled
	ContextBuilder *ContextBuilder
	Bus            domain.EventBus // optional, nil = no events
	Logger         *slog.Logger
	MaxIterations  int
	HistoryLimit   int           // messages loaded from Store; 0 loads none
	Timeout        time.Duration // per Generate call; 0 = none
}

// Agent orchestrates the receive-think-act loop.
type Agent struct {
	deps    AgentDeps
	backoff func(attempt int) time.Duration
}

// NewAgent creates an agent with the given dependencies.
func NewAgent(deps AgentDeps) *Agent {
	if deps.MaxIterations <= 0 {
		deps.MaxIterations = defaultMaxIterations
	}
	return &Agent{deps: deps, backoff: retryBackoff}
}

// ID returns the agent's catalog identifier.
func (a *Agent) ID() string { return a.deps.ID }

type agentPayload struct {
	Agent      string `json:"agent"`
	Iterations int    `json:"iterations,omitempty"`
	Tokens     int    `json:"tokens,omitempty"`
	Error      string `json:"error,omitempty"`
}

type llmPayload struct {
	Provider  string `json:"provider"`
	Iteration int    `json:"iteration"`
	ToolCalls int    `json:"tool_calls,omitempty"`
	Tokens    int    `json:"tokens,omitempty"`
}

type toolPayload struct {
	Tool    string `json:"tool"`
	CallID  string `json:"call_id"`
	IsError bool   `json:"is_error,omitempty"`
}

// Generate runs one user turn on threadID and returns the final reply.
// resourceID identifies the user owning the thread. With a Store, the
// thread's recent messages are replayed and the new ones persisted.
func (a *Agent) Generate(ctx context.Context, threadID, resourceID, userMsg string) (string, error) {
	ctx, span := tracer.StartSpan(ctx, "agent.generate",
		trace.WithAttributes(
			tracer.StringAttr("agent.id", a.deps.ID),
			tracer.StringAttr("thread.id", threadID),
		),
	)
	defer span.End()

	if a.deps.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.deps.Timeout)
		defer cancel()
	}
	ctx = domain.ContextWithThreadID(ctx, threadID)
	ctx = domain.ContextWithAgentID(ctx, a.deps.ID)

	eventbus.Emit(ctx, a.deps.Bus, domain.EventAgentStarted, agentPayload{Agent: a.deps.ID})

	session := NewSession(threadID)
	a.loadHistory(ctx, session, resourceID)
	session.AddMessage(domain.Message{Role: domain.RoleUser, Content: userMsg})

	reply, iterations, usage, err := a.run(ctx, session)
	a.persist(ctx, session)

	if err != nil {
		eventbus.Emit(ctx, a.deps.Bus, domain.EventAgentError, agentPayload{Agent: a.deps.ID, Iterations: iterations, Error: err.Error()})
		tracer.RecordError(span, err)
		return "", err
	}

	eventbus.Emit(ctx, a.deps.Bus, domain.EventAgentCompleted, agentPayload{Agent: a.deps.ID, Iterations: iterations, Tokens: usage.TotalTokens})
	span.SetAttributes(tracer.IntAttr("agent.iterations", iterations))
	tracer.SetOK(span)
	return reply, nil
}

func (a *Agent) run(ctx context.Context, session *Session) (string, int, domain.Usage, error) {
	var schemas []domain.ToolSchema
	if a.deps.Tools != nil {
		schemas = a.deps.Tools.Schemas()
	}

	var total domain.Usage
	for i := 0; i < a.deps.MaxIterations; i++ {
		req := a.deps.ContextBuilder.Build(session.Messages(), schemas)

		eventbus.Emit(ctx, a.deps.Bus, domain.EventLLMCallStarted, llmPayload{Provider: a.deps.LLM.Name(), Iteration: i})
		resp, err := a.callLLMWithRetry(ctx, req)
		if err != nil {
			return "", i + 1, total, domain.WrapOp("Agent.Generate", err)
		}
		total.Add(resp.Usage)
		msg := resp.Message
		msg.Role = domain.RoleAssistant
		eventbus.Emit(ctx, a.deps.Bus, domain.EventLLMCallCompleted, llmPayload{
			Provider:  a.deps.LLM.Name(),
			Iteration: i,
			ToolCalls: len(msg.ToolCalls),
			Tokens:    resp.Usage.TotalTokens,
		})
		session.AddMessage(msg)

		a.deps.Logger.Debug("llm response",
			"agent", a.deps.ID,
			"iteration", i,
			"tool_calls", len(msg.ToolCalls),
			"tokens", resp.Usage.TotalTokens,
		)

		if len(msg.ToolCalls) == 0 {
			return msg.Content, i + 1, total, nil
		}

		// Results land in indexed slots to keep the original call order.
		results := make([]domain.Message, len(msg.ToolCalls))
		var wg sync.WaitGroup
		for idx, call := range msg.ToolCalls {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results[idx] = a.executeTool(ctx, call)
			}()
		}
		wg.Wait()
		for _, r := range results {
			session.AddMessage(r)
		}
	}

	return "", a.deps.MaxIterations, total, domain.NewSubSystemError("agent", "Agent.Generate", domain.ErrMaxIterations, a.deps.ID)
}

// executeTool runs a single tool call and returns its result as a tool
// message. Failures are reported to the model rather than aborting the turn.
func (a *Agent) executeTool(ctx context.Context, call domain.ToolCall) domain.Message {
	ctx, span := tracer.StartSpan(ctx, "agent.execute_tool",
		trace.WithAttributes(tracer.StringAttr("tool.name", call.Name)),
	)
	defer span.End()

	failed := func(err error) domain.Message {
		tracer.RecordError(span, err)
		return domain.ToolResultMessage(call, err.Error(), true)
	}

	if a.deps.Tools == nil {
		return failed(fmt.Errorf("%w: %s", domain.ErrToolNotFound, call.Name))
	}
	t, err := a.deps.Tools.Get(call.Name)
	if err != nil {
		return failed(err)
	}

	eventbus.Emit(ctx, a.deps.Bus, domain.EventToolCallStarted, toolPayload{Tool: call.Name, CallID: call.ID})
	result, err := t.Execute(ctx, call.Arguments)
	eventbus.Emit(ctx, a.deps.Bus, domain.EventToolCallCompleted, toolPayload{
		Tool:    call.Name,
		CallID:  call.ID,
		IsError: err != nil || (result != nil && result.IsError),
	})

	if err != nil {
		a.deps.Logger.Warn("tool execution failed", "tool", call.Name, "error", err)
		return failed(err)
	}
	tracer.SetOK(span)
	return domain.ToolResultMessage(call, result.Content, result.IsError)
}

// callLLMWithRetry retries transient provider failures with exponential
// backoff and jitter, up to maxLLMAttempts attempts.
func (a *Agent) callLLMWithRetry(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	var lastErr error
	for attempt := 0; attempt < maxLLMAttempts; attempt++ {
		resp, err := a.deps.LLM.Chat(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !domain.IsRetryableError(err) || attempt == maxLLMAttempts-1 {
			break
		}

		delay := a.backoff(attempt)
		a.deps.Logger.Info("retrying llm call after error",
			"agent", a.deps.ID, "attempt", attempt+1, "delay", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// retryBackoff computes exponential backoff with 0-25% jitter.
func retryBackoff(attempt int) time.Duration {
	delay := baseRetryDelay * time.Duration(1<<uint(attempt))
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay/4) + 1))
	return delay + jitter
}

func (a *Agent) loadHistory(ctx context.Context, session *Session, resourceID string) {
	if a.deps.Store == nil || session.ThreadID == "" {
		return
	}
	ctx, span := tracer.StartSpan(ctx, "agent.load_history")
	defer span.End()

	if err := a.deps.Store.EnsureThread(ctx, domain.Thread{
		ID:         session.ThreadID,
		ResourceID: resourceID,
		AgentID:    a.deps.ID,
	}); err != nil {
		a.deps.Logger.Warn("ensure thread failed", "thread", session.ThreadID, "error", err)
		tracer.RecordError(span, err)
		return
	}
	if a.deps.HistoryLimit <= 0 {
		return
	}
	history, err := a.deps.Store.RecentMessages(ctx, session.ThreadID, a.deps.HistoryLimit)
	if err != nil {
		a.deps.Logger.Warn("load history failed", "thread", session.ThreadID, "error", err)
		tracer.RecordError(span, err)
		return
	}
	session.Load(history)
}

func (a *Agent) persist(ctx context.Context, session *Session) {
	if a.deps.Store == nil || session.ThreadID == "" {
		return
	}
	msgs := session.Unsaved()
	// Persist even when the turn was cancelled.
	ctx = context.WithoutCancel(ctx)
	if err := a.deps.Store.AppendMessages(ctx, session.ThreadID, msgs); err != nil {
		a.deps.Logger.Error("persist messages failed", "thread", session.ThreadID, "count", len(msgs), "error", err)
		return
	}
	session.MarkSaved()
	eventbus.Emit(ctx, a.deps.Bus, domain.EventSessionSaved, map[string]any{"thread": session.ThreadID, "messages": len(msgs)})
}
