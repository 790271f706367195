package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"weatherdine/internal/domain"
)

var _ domain.WorkflowStore = (*SQLiteStore)(nil)

// SaveRun inserts or replaces run, then prunes runs beyond the configured limit.
func (s *SQLiteStore) SaveRun(ctx context.Context, run domain.WorkflowRun) error {
	steps := run.Steps
	if steps == nil {
		steps = []domain.StepResult{}
	}
	stepsJSON, err := json.Marshal(steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = s.now()
	}
	if run.UpdatedAt.IsZero() {
		run.UpdatedAt = run.CreatedAt
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflow_runs (id, workflow_id, status, input, output, steps, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			output = excluded.output,
			steps = excluded.steps,
			error = excluded.error,
			updated_at = excluded.updated_at`,
		run.ID, run.WorkflowID, run.Status, string(run.Input), string(run.Output), string(stepsJSON), run.Error,
		formatTime(run.CreatedAt), formatTime(run.UpdatedAt),
	)
	if err != nil {
		return domain.NewSubSystemError("workflow", "SQLiteStore.SaveRun", domain.ErrMemoryStore, err.Error())
	}
	return s.pruneRuns(ctx)
}

func (s *SQLiteStore) pruneRuns(ctx context.Context) error {
	if s.maxRuns <= 0 {
		return nil
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM workflow_runs WHERE id NOT IN (
			SELECT id FROM workflow_runs ORDER BY created_at DESC, id DESC LIMIT ?
		)`, s.maxRuns)
	if err != nil {
		return domain.NewSubSystemError("workflow", "SQLiteStore.pruneRuns", domain.ErrMemoryStore, err.Error())
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.logger.Debug("pruned workflow runs", "count", n, "max_runs", s.maxRuns)
	}
	return nil
}

// GetRun returns the run with id.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*domain.WorkflowRun, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, workflow_id, status, input, output, steps, error, created_at, updated_at FROM workflow_runs WHERE id = ?", id)
	run, err := scanRun(row)
	if isNoRows(err) {
		return nil, domain.NewSubSystemError("workflow", "SQLiteStore.GetRun", domain.ErrNotFound, "run "+id)
	}
	return run, err
}

// ListRuns returns up to limit runs, newest first. A limit <= 0 returns all.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]domain.WorkflowRun, error) {
	query := "SELECT id, workflow_id, status, input, output, steps, error, created_at, updated_at FROM workflow_runs ORDER BY created_at DESC, id DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.NewSubSystemError("workflow", "SQLiteStore.ListRuns", domain.ErrMemoryStore, err.Error())
	}
	defer rows.Close()

	var runs []domain.WorkflowRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// DeleteRun removes the run with id.
func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM workflow_runs WHERE id = ?", id)
	if err != nil {
		return domain.NewSubSystemError("workflow", "SQLiteStore.DeleteRun", domain.ErrMemoryStore, err.Error())
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NewSubSystemError("workflow", "SQLiteStore.DeleteRun", domain.ErrNotFound, "run "+id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*domain.WorkflowRun, error) {
	var run domain.WorkflowRun
	var input, output, steps, created, updated string
	if err := sc.Scan(&run.ID, &run.WorkflowID, &run.Status, &input, &output, &steps, &run.Error, &created, &updated); err != nil {
		return nil, err
	}
	if input != "" {
		run.Input = json.RawMessage(input)
	}
	if output != "" {
		run.Output = json.RawMessage(output)
	}
	if err := json.Unmarshal([]byte(steps), &run.Steps); err != nil {
		return nil, fmt.Errorf("unmarshal steps for run %s: %w", run.ID, err)
	}
	run.CreatedAt = parseTime(created)
	run.UpdatedAt = parseTime(updated)
	return &run, nil
}
