package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/buildforge/wincore/internal/build"
)

// Tracking is the latest-known-build record for one (component, branch)
// tuple. At most one row exists per tuple.
type Tracking struct {
	ID               int64
	ComponentID      int64
	BranchID         int64
	Coordinate       build.Coordinate
	ArtifactURL      string
	LastCheckedAt    *time.Time
	LastDownloadedAt *time.Time
	DownloadStatus   build.Status
	ExtractionStatus build.Status
	DownloadPath     string
	ExtractionPath   string
	SizeBytes        int64
	Checksum         string
	ErrorMessage     string
}

// GetTracking returns the tracking row for a tuple, or nil when the tuple has
// never been discovered.
func (s *Store) GetTracking(ctx context.Context, componentID, branchID int64) (*Tracking, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	query := `
		SELECT id, component_id, branch_id, build_date, build_seq, artifact_url,
			last_checked_at, last_downloaded_at, download_status, extraction_status,
			download_path, extraction_path, size_bytes, checksum, error_message
		FROM build_tracking WHERE component_id = ? AND branch_id = ?
	`
	tr := &Tracking{}
	err := s.conn.QueryRowContext(ctx, query, componentID, branchID).Scan(
		&tr.ID, &tr.ComponentID, &tr.BranchID, &tr.Coordinate.Date, &tr.Coordinate.Seq,
		&tr.ArtifactURL, &tr.LastCheckedAt, &tr.LastDownloadedAt,
		&tr.DownloadStatus, &tr.ExtractionStatus,
		&tr.DownloadPath, &tr.ExtractionPath, &tr.SizeBytes, &tr.Checksum, &tr.ErrorMessage,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tracking: %w", err)
	}
	return tr, nil
}

// ListTracking returns all tracking rows, newest coordinate first. Used by
// the status command.
func (s *Store) ListTracking(ctx context.Context) ([]*Tracking, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	query := `
		SELECT id, component_id, branch_id, build_date, build_seq, artifact_url,
			last_checked_at, last_downloaded_at, download_status, extraction_status,
			download_path, extraction_path, size_bytes, checksum, error_message
		FROM build_tracking
		ORDER BY build_date DESC, build_seq DESC
	`
	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracking: %w", err)
	}
	defer rows.Close()

	trackings := []*Tracking{}
	for rows.Next() {
		tr := &Tracking{}
		err := rows.Scan(
			&tr.ID, &tr.ComponentID, &tr.BranchID, &tr.Coordinate.Date, &tr.Coordinate.Seq,
			&tr.ArtifactURL, &tr.LastCheckedAt, &tr.LastDownloadedAt,
			&tr.DownloadStatus, &tr.ExtractionStatus,
			&tr.DownloadPath, &tr.ExtractionPath, &tr.SizeBytes, &tr.Checksum, &tr.ErrorMessage,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tracking: %w", err)
		}
		trackings = append(trackings, tr)
	}
	return trackings, rows.Err()
}

// UpsertTracking creates or updates the tuple's tracking row. The stored
// coordinate is monotonic: an update carrying a lower coordinate than the
// stored one keeps the stored coordinate and only refreshes statuses,
// timestamps and the error message.
func (s *Store) UpsertTracking(ctx context.Context, tr *Tracking) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var curDate string
		var curSeq int
		err := tx.QueryRow(
			`SELECT build_date, build_seq FROM build_tracking WHERE component_id = ? AND branch_id = ?`,
			tr.ComponentID, tr.BranchID,
		).Scan(&curDate, &curSeq)

		switch {
		case err == sql.ErrNoRows:
			_, err = tx.Exec(`
				INSERT INTO build_tracking (component_id, branch_id, build_date, build_seq,
					artifact_url, last_checked_at, last_downloaded_at,
					download_status, extraction_status, download_path, extraction_path,
					size_bytes, checksum, error_message)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, tr.ComponentID, tr.BranchID, tr.Coordinate.Date, tr.Coordinate.Seq,
				tr.ArtifactURL, tr.LastCheckedAt, tr.LastDownloadedAt,
				tr.DownloadStatus, tr.ExtractionStatus, tr.DownloadPath, tr.ExtractionPath,
				tr.SizeBytes, tr.Checksum, tr.ErrorMessage)
			if err != nil {
				return fmt.Errorf("failed to insert tracking: %w", err)
			}
			return nil
		case err != nil:
			return fmt.Errorf("failed to read tracking: %w", err)
		}

		coord := tr.Coordinate
		cur := build.Coordinate{Date: curDate, Seq: curSeq}
		if coord.Before(cur) {
			coord = cur
		}
		_, err = tx.Exec(`
			UPDATE build_tracking
			SET build_date = ?, build_seq = ?, artifact_url = ?,
				last_checked_at = ?, last_downloaded_at = ?,
				download_status = ?, extraction_status = ?,
				download_path = ?, extraction_path = ?,
				size_bytes = ?, checksum = ?, error_message = ?
			WHERE component_id = ? AND branch_id = ?
		`, coord.Date, coord.Seq, tr.ArtifactURL,
			tr.LastCheckedAt, tr.LastDownloadedAt,
			tr.DownloadStatus, tr.ExtractionStatus,
			tr.DownloadPath, tr.ExtractionPath,
			tr.SizeBytes, tr.Checksum, tr.ErrorMessage,
			tr.ComponentID, tr.BranchID)
		if err != nil {
			return fmt.Errorf("failed to update tracking: %w", err)
		}
		return nil
	})
}

// TouchTracking updates only the last-checked timestamp for a tuple that
// already has a row. Missing rows are left alone.
func (s *Store) TouchTracking(ctx context.Context, componentID, branchID int64, at time.Time) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.conn.ExecContext(ctx,
		`UPDATE build_tracking SET last_checked_at = ? WHERE component_id = ? AND branch_id = ?`,
		at, componentID, branchID)
	if err != nil {
		return fmt.Errorf("failed to touch tracking: %w", err)
	}
	return nil
}
