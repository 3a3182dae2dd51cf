// Package retention keeps each tuple's history bounded to the most recent
// MaxBuildsToKeep builds, removing pruned builds from disk.
package retention

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/buildforge/wincore/internal/activity"
	"github.com/buildforge/wincore/internal/build"
	"github.com/buildforge/wincore/internal/store"
	"github.com/buildforge/wincore/pkg/logger"
)

// History is the slice of the store the manager needs.
type History interface {
	ActiveHistory(ctx context.Context, componentID, branchID int64) ([]*store.HistoryEntry, error)
	MarkHistoryDeleted(ctx context.Context, ids []int64, at time.Time) error
}

// Result summarizes one prune pass for a tuple.
type Result struct {
	Marked       int // rows flipped to deleted
	Removed      int // paths actually removed from disk
	FailedPaths  int // paths that could not be removed
	MissingPaths int // paths already gone
}

// Manager prunes old builds.
type Manager struct {
	history  History
	keep     func(ctx context.Context) int
	activity *activity.Log
	log      *logger.Logger
	now      func() time.Time
}

// NewManager creates a retention manager. keep supplies the current
// MaxBuildsToKeep so config changes apply without restart.
func NewManager(history History, keep func(ctx context.Context) int, act *activity.Log, log *logger.Logger, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{history: history, keep: keep, activity: act, log: log, now: now}
}

// Prune marks every history entry beyond the retention window deleted in one
// transaction, then removes the pruned builds from disk. Disk failures are
// logged as warnings and do not abort pruning of other entries. The caller
// holds the per-tuple lock.
func (m *Manager) Prune(ctx context.Context, tuple build.Tuple) (*Result, error) {
	entries, err := m.history.ActiveHistory(ctx, tuple.Component.ID, tuple.Branch.ID)
	if err != nil {
		return nil, err
	}

	keep := m.keep(ctx)
	if keep < 1 {
		keep = 1
	}
	if len(entries) <= keep {
		return &Result{}, nil
	}

	// entries are newest-first; everything past the window goes.
	pruned := entries[keep:]
	ids := make([]int64, 0, len(pruned))
	for _, h := range pruned {
		ids = append(ids, h.ID)
	}
	if err := m.history.MarkHistoryDeleted(ctx, ids, m.now()); err != nil {
		return nil, err
	}

	result := &Result{Marked: len(pruned)}
	for _, h := range pruned {
		m.removePath(tuple, h.ExtractionPath, true, result)
		m.removePath(tuple, h.DownloadPath, false, result)
		m.activity.Tuple(ctx, activity.LevelInfo, activity.OpCleanup, tuple, h.Coordinate, 0,
			"pruned build beyond retention window")
	}

	m.log.Debug("prune complete",
		slog.String("tuple", tuple.String()),
		slog.Int("marked", result.Marked),
		slog.Int("removed", result.Removed),
		slog.Int("failed", result.FailedPaths))
	return result, nil
}

func (m *Manager) removePath(tuple build.Tuple, path string, recursive bool, result *Result) {
	if path == "" {
		return
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		result.MissingPaths++
		return
	}

	var err error
	if recursive {
		err = os.RemoveAll(path)
	} else {
		err = os.Remove(path)
	}
	if err != nil {
		result.FailedPaths++
		m.log.Warn("failed to remove pruned path",
			slog.String("tuple", tuple.String()),
			slog.String("path", path),
			slog.String("error", err.Error()))
		return
	}
	result.Removed++
}
