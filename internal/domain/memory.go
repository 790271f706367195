package domain

import (
	"context"
	"time"
)

// Thread is a persisted conversation between a resource (user) and an agent.
type Thread struct {
	ID         string    `json:"id"`
	ResourceID string    `json:"resource_id"`
	AgentID    string    `json:"agent_id"`
	Title      string    `json:"title,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ConversationStore persists threads and their messages.
type ConversationStore interface {
	// EnsureThread creates the thread if absent and bumps its updated_at otherwise.
	EnsureThread(ctx context.Context, thread Thread) error
	AppendMessages(ctx context.Context, threadID string, msgs []Message) error
	// RecentMessages returns up to limit of the newest messages in chronological order.
	RecentMessages(ctx context.Context, threadID string, limit int) ([]Message, error)
	ListThreads(ctx context.Context, resourceID string) ([]Thread, error)
	DeleteThread(ctx context.Context, id string) error
}
