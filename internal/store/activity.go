package store

import (
	"context"
	"fmt"
	"time"
)

// ActivityRow is one persisted activity log entry. Rows are append-only and
// never mutated.
type ActivityRow struct {
	ID          int64
	Timestamp   time.Time
	Level       string
	Operation   string
	ComponentID *int64
	BranchID    *int64
	BuildDate   string
	BuildSeq    int
	DurationMS  *int64
	Message     string
}

// AppendActivity inserts one activity log row.
func (s *Store) AppendActivity(ctx context.Context, row *ActivityRow) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO activity_log (ts, level, operation, component_id, branch_id,
			build_date, build_seq, duration_ms, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, row.Timestamp, row.Level, row.Operation, row.ComponentID, row.BranchID,
		row.BuildDate, row.BuildSeq, row.DurationMS, row.Message)
	if err != nil {
		return fmt.Errorf("failed to append activity: %w", err)
	}
	id, _ := res.LastInsertId()
	row.ID = id
	return nil
}

// PurgeActivity removes rows older than the cutoff and returns how many were
// deleted. Driven by the LogRetentionDays config from the cleanup command.
func (s *Store) PurgeActivity(ctx context.Context, olderThan time.Time) (int64, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	res, err := s.conn.ExecContext(ctx,
		`DELETE FROM activity_log WHERE ts < ?`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to purge activity log: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// RecentActivity returns the most recent rows, newest first. Used by tests
// and diagnostics.
func (s *Store) RecentActivity(ctx context.Context, limit int) ([]*ActivityRow, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, ts, level, operation, component_id, branch_id,
			build_date, build_seq, duration_ms, message
		FROM activity_log ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	defer rows.Close()

	entries := []*ActivityRow{}
	for rows.Next() {
		row := &ActivityRow{}
		err := rows.Scan(
			&row.ID, &row.Timestamp, &row.Level, &row.Operation,
			&row.ComponentID, &row.BranchID, &row.BuildDate, &row.BuildSeq,
			&row.DurationMS, &row.Message,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		entries = append(entries, row)
	}
	return entries, rows.Err()
}
