package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/buildforge/wincore/internal/build"
)

// HistoryEntry is one downloaded build. Rows are append-only; retention flips
// the deleted flag but never removes them.
type HistoryEntry struct {
	ID             int64
	ComponentID    int64
	BranchID       int64
	Coordinate     build.Coordinate
	ArtifactURL    string
	DownloadPath   string
	ExtractionPath string
	SizeBytes      int64
	Checksum       string
	DownloadedAt   time.Time
	Deleted        bool
	DeletedAt      *time.Time
}

// AppendHistory inserts a history row and fills in its ID.
func (s *Store) AppendHistory(ctx context.Context, h *HistoryEntry) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO build_history (component_id, branch_id, build_date, build_seq,
			artifact_url, download_path, extraction_path, size_bytes, checksum, downloaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, h.ComponentID, h.BranchID, h.Coordinate.Date, h.Coordinate.Seq,
		h.ArtifactURL, h.DownloadPath, h.ExtractionPath, h.SizeBytes, h.Checksum, h.DownloadedAt)
	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	id, _ := res.LastInsertId()
	h.ID = id
	return nil
}

// ActiveHistory returns the non-deleted history for a tuple ordered by
// coordinate descending (newest first).
func (s *Store) ActiveHistory(ctx context.Context, componentID, branchID int64) ([]*HistoryEntry, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	query := `
		SELECT id, component_id, branch_id, build_date, build_seq,
			artifact_url, download_path, extraction_path, size_bytes, checksum,
			downloaded_at, deleted, deleted_at
		FROM build_history
		WHERE component_id = ? AND branch_id = ? AND deleted = 0
		ORDER BY build_date DESC, build_seq DESC
	`
	rows, err := s.conn.QueryContext(ctx, query, componentID, branchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	return scanHistory(rows)
}

// HistoryForTuple returns all history rows for a tuple, including deleted
// ones, newest first.
func (s *Store) HistoryForTuple(ctx context.Context, componentID, branchID int64) ([]*HistoryEntry, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	query := `
		SELECT id, component_id, branch_id, build_date, build_seq,
			artifact_url, download_path, extraction_path, size_bytes, checksum,
			downloaded_at, deleted, deleted_at
		FROM build_history
		WHERE component_id = ? AND branch_id = ?
		ORDER BY build_date DESC, build_seq DESC
	`
	rows, err := s.conn.QueryContext(ctx, query, componentID, branchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	return scanHistory(rows)
}

func scanHistory(rows *sql.Rows) ([]*HistoryEntry, error) {
	entries := []*HistoryEntry{}
	for rows.Next() {
		h := &HistoryEntry{}
		err := rows.Scan(
			&h.ID, &h.ComponentID, &h.BranchID, &h.Coordinate.Date, &h.Coordinate.Seq,
			&h.ArtifactURL, &h.DownloadPath, &h.ExtractionPath, &h.SizeBytes, &h.Checksum,
			&h.DownloadedAt, &h.Deleted, &h.DeletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		entries = append(entries, h)
	}
	return entries, rows.Err()
}

// MarkHistoryDeleted flips the deleted flag on the given rows in a single
// transaction. Already-deleted rows keep their original deletion timestamp.
func (s *Store) MarkHistoryDeleted(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
		args := make([]interface{}, 0, len(ids)+1)
		args = append(args, at)
		for _, id := range ids {
			args = append(args, id)
		}
		query := fmt.Sprintf(
			`UPDATE build_history SET deleted = 1, deleted_at = ? WHERE deleted = 0 AND id IN (%s)`,
			placeholders)
		if _, err := tx.Exec(query, args...); err != nil {
			return fmt.Errorf("failed to mark history deleted: %w", err)
		}
		return nil
	})
}
