package domain

import "context"

type ctxKey string

const (
	threadCtxKey ctxKey = "thread_id"
	agentCtxKey  ctxKey = "agent_id"
	runCtxKey    ctxKey = "run_id"
)

// ContextWithThreadID returns a new context carrying the conversation thread ID.
func ContextWithThreadID(ctx context.Context, threadID string) context.Context {
	return context.WithValue(ctx, threadCtxKey, threadID)
}

// ThreadIDFromContext extracts the thread ID from the context.
// Returns empty string if not set.
func ThreadIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(threadCtxKey).(string); ok {
		return v
	}
	return ""
}

// ContextWithAgentID returns a new context carrying the handling agent's ID.
func ContextWithAgentID(ctx context.Context, agentID string) context.Context {
	return context.WithValue(ctx, agentCtxKey, agentID)
}

// AgentIDFromContext extracts the agent ID from the context.
func AgentIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(agentCtxKey).(string); ok {
		return v
	}
	return ""
}

// ContextWithRunID returns a new context carrying a workflow run ID.
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runCtxKey, runID)
}

// RunIDFromContext extracts the workflow run ID from the context.
func RunIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(runCtxKey).(string); ok {
		return v
	}
	return ""
}
