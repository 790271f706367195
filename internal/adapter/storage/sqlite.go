package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// MemoryPath keeps the database in-process. It is discarded on Close.
const MemoryPath = ":memory:"

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore persists conversation threads, messages and workflow runs.
// It implements domain.ConversationStore and domain.WorkflowStore.
type SQLiteStore struct {
	db      *sql.DB
	path    string
	maxRuns int
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithMaxRuns keeps at most n workflow runs, pruning the oldest. 0 keeps all.
func WithMaxRuns(n int) Option {
	return func(s *SQLiteStore) { s.maxRuns = n }
}

// Open opens (or creates) the SQLite database at path and migrates it.
func Open(path string, logger *slog.Logger, opts ...Option) (*SQLiteStore, error) {
	if path != MemoryPath {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("create db dir: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db %s: %w", path, err)
	}

	if path == MemoryPath {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	} else {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("set WAL mode: %w", err)
		}
		if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
			db.Close()
			return nil, fmt.Errorf("set busy timeout: %w", err)
		}
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}

	s := &SQLiteStore{
		db:     db,
		path:   path,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	logger.Debug("sqlite store opened", "path", path)
	return s, nil
}

func migrate(db *sql.DB) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS threads (
			id          TEXT PRIMARY KEY,
			resource_id TEXT NOT NULL DEFAULT '',
			agent_id    TEXT NOT NULL DEFAULT '',
			title       TEXT NOT NULL DEFAULT '',
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS threads_resource ON threads(resource_id, updated_at);

		CREATE TABLE IF NOT EXISTS messages (
			id         TEXT PRIMARY KEY,
			thread_id  TEXT NOT NULL,
			role       TEXT NOT NULL,
			content    TEXT NOT NULL DEFAULT '',
			name       TEXT NOT NULL DEFAULT '',
			tool_calls TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS messages_thread ON messages(thread_id);

		CREATE TABLE IF NOT EXISTS workflow_runs (
			id          TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			status      TEXT NOT NULL,
			input       TEXT NOT NULL DEFAULT '',
			output      TEXT NOT NULL DEFAULT '',
			steps       TEXT NOT NULL DEFAULT '[]',
			error       TEXT NOT NULL DEFAULT '',
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS workflow_runs_created ON workflow_runs(created_at);
	`
	_, err := db.Exec(schema)
	return err
}

// Path returns the database location.
func (s *SQLiteStore) Path() string { return s.path }

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Stores opens one SQLiteStore per database path and shares it between
// every agent that points at the same file.
type Stores struct {
	mu     sync.Mutex
	byPath map[string]*SQLiteStore
	logger *slog.Logger
	opts   []Option
}

// NewStores creates an empty store cache.
func NewStores(logger *slog.Logger, opts ...Option) *Stores {
	return &Stores{
		byPath: make(map[string]*SQLiteStore),
		logger: logger,
		opts:   opts,
	}
}

// Open returns the store for path, opening it on first use.
// MemoryPath is never shared.
func (c *Stores) Open(path string) (*SQLiteStore, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := path
	if path != MemoryPath {
		if abs, err := filepath.Abs(path); err == nil {
			key = abs
		}
		if s, ok := c.byPath[key]; ok {
			return s, nil
		}
	}

	s, err := Open(path, c.logger, c.opts...)
	if err != nil {
		return nil, err
	}
	if path == MemoryPath {
		key = fmt.Sprintf("%s#%d", MemoryPath, len(c.byPath))
	}
	c.byPath[key] = s
	return s, nil
}

// Close closes every opened store.
func (c *Stores) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for key, s := range c.byPath {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.byPath, key)
	}
	return firstErr
}
