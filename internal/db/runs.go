package db

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

// CreateRun records the start of a harvest run. Re-recording an existing id
// (a resumed run) resets it to running.
func (db *DB) CreateRun(ctx context.Context, runID uuid.UUID, queueLength int) error {
	query, args, err := psql.Insert(runsTable).
		Columns("id", "status", "queue_length").
		Values(runID, RunStatusRunning, queueLength).
		Suffix("ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, completed_at = NULL").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}
	if _, err := db.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// CompleteRun marks a harvest run finished with its final counters
func (db *DB) CompleteRun(ctx context.Context, runID uuid.UUID, status string, successCount, errorCount int) error {
	query, args, err := completeRunQuery(runID, status, successCount, errorCount)
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}
	if _, err := db.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	return nil
}

func completeRunQuery(runID uuid.UUID, status string, successCount, errorCount int) (string, []any, error) {
	return psql.Update(runsTable).
		Set("status", status).
		Set("success_count", successCount).
		Set("error_count", errorCount).
		Set("completed_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": runID}).
		ToSql()
}

func listRunsQuery(limit int) (string, []any, error) {
	return psql.Select("id", "status", "queue_length", "success_count", "error_count", "created_at", "completed_at").
		From(runsTable).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		ToSql()
}

// ListRuns returns the most recent runs, newest first
func (db *DB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query, args, err := listRunsQuery(limit)
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Status, &r.QueueLength, &r.SuccessCount, &r.ErrorCount, &r.CreatedAt, &r.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}
