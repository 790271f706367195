package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/oklog/ulid/v2"

	"weatherdine/internal/domain"
)

var _ domain.ConversationStore = (*SQLiteStore)(nil)

// EnsureThread creates the thread or bumps its updated_at.
// A non-empty title overwrites the stored one.
func (s *SQLiteStore) EnsureThread(ctx context.Context, thread domain.Thread) error {
	if thread.ID == "" {
		return domain.NewSubSystemError("memory", "SQLiteStore.EnsureThread", domain.ErrInvalidInput, "thread id is required")
	}
	now := formatTime(s.now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO threads (id, resource_id, agent_id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			updated_at = excluded.updated_at,
			title = CASE WHEN excluded.title != '' THEN excluded.title ELSE threads.title END`,
		thread.ID, thread.ResourceID, thread.AgentID, thread.Title, now, now,
	)
	if err != nil {
		return fmt.Errorf("%w: ensure thread %s: %v", domain.ErrMemoryStore, thread.ID, err)
	}
	return nil
}

// AppendMessages stores msgs in order within one transaction.
func (s *SQLiteStore) AppendMessages(ctx context.Context, threadID string, msgs []domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", domain.ErrMemoryStore, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO messages (id, thread_id, role, content, name, tool_calls, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("%w: prepare: %v", domain.ErrMemoryStore, err)
	}
	defer stmt.Close()

	for _, m := range msgs {
		var calls string
		if len(m.ToolCalls) > 0 {
			b, err := json.Marshal(m.ToolCalls)
			if err != nil {
				return fmt.Errorf("marshal tool calls: %w", err)
			}
			calls = string(b)
		}
		ts := m.Timestamp
		if ts.IsZero() {
			ts = s.now()
		}
		if _, err := stmt.ExecContext(ctx,
			ulid.Make().String(), threadID, m.Role, m.Content, m.Name, calls, formatTime(ts),
		); err != nil {
			return fmt.Errorf("%w: insert message: %v", domain.ErrMemoryStore, err)
		}
	}

	if _, err := tx.ExecContext(ctx, "UPDATE threads SET updated_at = ? WHERE id = ?", formatTime(s.now()), threadID); err != nil {
		return fmt.Errorf("%w: touch thread: %v", domain.ErrMemoryStore, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", domain.ErrMemoryStore, err)
	}
	return nil
}

// RecentMessages returns the newest limit messages, oldest first.
// A limit <= 0 returns the whole thread.
func (s *SQLiteStore) RecentMessages(ctx context.Context, threadID string, limit int) ([]domain.Message, error) {
	query := "SELECT role, content, name, tool_calls, created_at FROM messages WHERE thread_id = ? ORDER BY rowid DESC"
	args := []any{threadID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query messages: %v", domain.ErrMemoryStore, err)
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var m domain.Message
		var calls, created string
		if err := rows.Scan(&m.Role, &m.Content, &m.Name, &calls, &created); err != nil {
			return nil, fmt.Errorf("%w: scan message: %v", domain.ErrMemoryStore, err)
		}
		if calls != "" {
			if err := json.Unmarshal([]byte(calls), &m.ToolCalls); err != nil {
				return nil, fmt.Errorf("unmarshal tool calls: %w", err)
			}
		}
		m.Timestamp = parseTime(created)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// ListThreads returns the resource's threads, most recently updated first.
// An empty resourceID lists every thread.
func (s *SQLiteStore) ListThreads(ctx context.Context, resourceID string) ([]domain.Thread, error) {
	query := "SELECT id, resource_id, agent_id, title, created_at, updated_at FROM threads"
	var args []any
	if resourceID != "" {
		query += " WHERE resource_id = ?"
		args = append(args, resourceID)
	}
	query += " ORDER BY updated_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query threads: %v", domain.ErrMemoryStore, err)
	}
	defer rows.Close()

	var threads []domain.Thread
	for rows.Next() {
		var t domain.Thread
		var created, updated string
		if err := rows.Scan(&t.ID, &t.ResourceID, &t.AgentID, &t.Title, &created, &updated); err != nil {
			return nil, fmt.Errorf("%w: scan thread: %v", domain.ErrMemoryStore, err)
		}
		t.CreatedAt = parseTime(created)
		t.UpdatedAt = parseTime(updated)
		threads = append(threads, t)
	}
	return threads, rows.Err()
}

// DeleteThread removes a thread and its messages.
func (s *SQLiteStore) DeleteThread(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", domain.ErrMemoryStore, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE thread_id = ?", id); err != nil {
		return fmt.Errorf("%w: delete messages: %v", domain.ErrMemoryStore, err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM threads WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("%w: delete thread: %v", domain.ErrMemoryStore, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NewSubSystemError("memory", "SQLiteStore.DeleteThread", domain.ErrNotFound, "thread "+id)
	}
	return tx.Commit()
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
