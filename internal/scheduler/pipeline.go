package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/buildforge/wincore/internal/activity"
	"github.com/buildforge/wincore/internal/build"
	"github.com/buildforge/wincore/internal/download"
	"github.com/buildforge/wincore/internal/jfrog"
	"github.com/buildforge/wincore/internal/store"
)

// outcome records what one pipeline run did, for cycle aggregation.
type outcome struct {
	probed     bool
	newBuild   bool
	downloaded bool
	extracted  bool
	failed     bool
	pruned     int
}

func (o outcome) addTo(s *Summary) {
	if o.probed {
		s.Probed++
	}
	if o.newBuild {
		s.NewBuilds++
	}
	if o.downloaded {
		s.Downloaded++
	}
	if o.extracted {
		s.Extracted++
	}
	if o.failed {
		s.Failed++
	}
	s.Pruned += o.pruned
}

func tupleOf(ac store.ActiveConfig) build.Tuple {
	return build.Tuple{Component: ac.Component, Branch: ac.Branch}
}

// runTuple executes one pipeline: probe, download, extract, history append,
// prune. Operations within the pipeline are strictly serialized; the tuple
// lock is held for the whole run so retention never observes a
// half-materialized build.
func (s *Scheduler) runTuple(ctx context.Context, ac store.ActiveConfig) outcome {
	tuple := tupleOf(ac)
	out := outcome{}

	release, ok := s.locks.acquire(tuple.Key(), lockTimeout)
	if !ok {
		s.deps.Logger.Warn("tuple lock busy, skipping",
			slog.String("tuple", tuple.String()))
		return out
	}
	defer release()

	// Probe with the tracked coordinate as hint.
	tracking, err := s.trackingRetry(ctx, tuple)
	if err != nil {
		s.critical(ctx, fmt.Sprintf("tracking read failed for %s: %v", tuple, err))
		out.failed = true
		return out
	}
	var hint *build.Coordinate
	if tracking != nil && !tracking.Coordinate.IsZero() {
		c := tracking.Coordinate
		hint = &c
	}

	probeStart := s.deps.Clock.Now()
	latest, err := s.deps.Client.LatestFor(ctx, ac.Component, ac.Branch.Name, hint)
	probeDur := s.deps.Clock.Now().Sub(probeStart)
	out.probed = true

	if err != nil {
		out.failed = true
		s.recordFailure(ctx, tuple, tracking, build.Coordinate{}, probeErrorMessage(err),
			activity.OpPoll, probeDur, build.StatusFailed, build.StatusPending)
		return out
	}
	s.deps.Activity.Tuple(ctx, activity.LevelDebug, activity.OpPoll, tuple,
		coordOrZero(latest), probeDur, "probe complete")

	// A coordinate at or below the tracked one is only settled when the
	// tracked pipeline actually finished; a failed attempt is re-run.
	if latest == nil || (hint != nil && !latest.After(*hint) && completedThrough(tracking, *latest)) {
		now := s.deps.Clock.Now()
		if tracking != nil {
			s.deps.Store.TouchTracking(ctx, tuple.Component.ID, tuple.Branch.ID, now)
		}
		s.deps.Logger.Debug("no new build",
			slog.String("tuple", tuple.String()))
		s.markPolled(ac)
		return out
	}
	out.newBuild = true
	coord := *latest

	url, err := s.deps.Client.BuildURL(ac.Component, ac.Branch.Name, coord)
	if err != nil {
		out.failed = true
		s.recordFailure(ctx, tuple, tracking, coord, err.Error(),
			activity.OpPoll, 0, build.StatusFailed, build.StatusPending)
		return out
	}

	// Download.
	now := s.deps.Clock.Now()
	s.upsertTracking(ctx, &store.Tracking{
		ComponentID:      tuple.Component.ID,
		BranchID:         tuple.Branch.ID,
		Coordinate:       coord,
		ArtifactURL:      url,
		LastCheckedAt:    &now,
		DownloadStatus:   build.StatusDownloading,
		ExtractionStatus: build.StatusPending,
	})

	dlCtx := ctx
	if ac.Polling.DownloadTimeout > 0 {
		var cancel context.CancelFunc
		dlCtx, cancel = context.WithTimeout(ctx, ac.Polling.DownloadTimeout)
		defer cancel()
	}
	dlStart := s.deps.Clock.Now()
	result, err := s.deps.Downloads.Download(dlCtx, ac.Component, ac.Branch.Name, coord)
	dlDur := s.deps.Clock.Now().Sub(dlStart)
	if err != nil {
		out.failed = true
		s.recordFailure(ctx, tuple, tracking, coord, downloadErrorMessage(err),
			activity.OpDownload, dlDur, build.StatusFailed, build.StatusPending)
		return out
	}
	out.downloaded = true
	s.deps.Activity.Tuple(ctx, activity.LevelInfo, activity.OpDownload, tuple, coord, dlDur,
		fmt.Sprintf("downloaded %d bytes", result.SizeBytes))

	downloadedAt := s.deps.Clock.Now()
	layout, err := download.EnsureLayout(s.deps.BaseDrive, ac.Component.GUID)
	if err != nil {
		out.failed = true
		s.recordFailure(ctx, tuple, tracking, coord, err.Error(),
			activity.OpDownload, 0, build.StatusFailed, build.StatusPending)
		return out
	}
	extractionDir := layout.ExtractionDir(coord, ac.Component.Name)

	s.upsertTracking(ctx, &store.Tracking{
		ComponentID:      tuple.Component.ID,
		BranchID:         tuple.Branch.ID,
		Coordinate:       coord,
		ArtifactURL:      url,
		LastCheckedAt:    &downloadedAt,
		LastDownloadedAt: &downloadedAt,
		DownloadStatus:   build.StatusCompleted,
		ExtractionStatus: build.StatusPending,
		DownloadPath:     result.HistoryPath,
		SizeBytes:        result.SizeBytes,
		Checksum:         result.Checksum,
	})

	// Extract.
	exCtx := ctx
	if ac.Polling.ExtractionTimeout > 0 {
		var cancel context.CancelFunc
		exCtx, cancel = context.WithTimeout(ctx, ac.Polling.ExtractionTimeout)
		defer cancel()
	}
	exStart := s.deps.Clock.Now()
	exResult, err := s.deps.Extractor.Extract(exCtx, result.HistoryPath, extractionDir)
	exDur := s.deps.Clock.Now().Sub(exStart)
	if err != nil {
		out.failed = true
		s.recordFailure(ctx, tuple, tracking, coord, extractionErrorMessage(err),
			activity.OpExtraction, exDur, build.StatusCompleted, build.StatusFailed)
		return out
	}
	out.extracted = true
	s.deps.Activity.Tuple(ctx, activity.LevelInfo, activity.OpExtraction, tuple, coord, exDur,
		fmt.Sprintf("extracted %d files", exResult.FileCount))

	completedAt := s.deps.Clock.Now()
	s.upsertTracking(ctx, &store.Tracking{
		ComponentID:      tuple.Component.ID,
		BranchID:         tuple.Branch.ID,
		Coordinate:       coord,
		ArtifactURL:      url,
		LastCheckedAt:    &completedAt,
		LastDownloadedAt: &downloadedAt,
		DownloadStatus:   build.StatusCompleted,
		ExtractionStatus: build.StatusCompleted,
		DownloadPath:     result.HistoryPath,
		ExtractionPath:   exResult.Path,
		SizeBytes:        result.SizeBytes,
		Checksum:         result.Checksum,
	})

	// History append, then retention.
	entry := &store.HistoryEntry{
		ComponentID:    tuple.Component.ID,
		BranchID:       tuple.Branch.ID,
		Coordinate:     coord,
		ArtifactURL:    url,
		DownloadPath:   result.HistoryPath,
		ExtractionPath: exResult.Path,
		SizeBytes:      result.SizeBytes,
		Checksum:       result.Checksum,
		DownloadedAt:   downloadedAt,
	}
	if err := s.deps.Store.AppendHistory(ctx, entry); err != nil {
		// Retried once inside the store timeout window; treat as tuple failure.
		if err2 := s.deps.Store.AppendHistory(ctx, entry); err2 != nil {
			out.failed = true
			s.recordFailure(ctx, tuple, tracking, coord, err2.Error(),
				activity.OpDownload, 0, build.StatusCompleted, build.StatusCompleted)
			return out
		}
	}

	pruneRes, err := s.deps.Retention.Prune(ctx, tuple)
	if err != nil {
		s.deps.Activity.Tuple(ctx, activity.LevelWarning, activity.OpCleanup, tuple, coord, 0,
			fmt.Sprintf("prune failed: %v", err))
	} else {
		out.pruned = pruneRes.Marked
	}

	s.markPolled(ac)
	return out
}

// recordFailure writes the error to both the tracking row and the activity
// log, per the error policy.
func (s *Scheduler) recordFailure(ctx context.Context, tuple build.Tuple, prev *store.Tracking,
	coord build.Coordinate, msg string, op activity.Op, dur time.Duration,
	dlStatus, exStatus build.Status) {

	now := s.deps.Clock.Now()
	tr := &store.Tracking{
		ComponentID:      tuple.Component.ID,
		BranchID:         tuple.Branch.ID,
		Coordinate:       coord,
		LastCheckedAt:    &now,
		DownloadStatus:   dlStatus,
		ExtractionStatus: exStatus,
		ErrorMessage:     msg,
	}
	if prev != nil {
		if coord.IsZero() {
			tr.Coordinate = prev.Coordinate
		}
		tr.ArtifactURL = prev.ArtifactURL
		tr.LastDownloadedAt = prev.LastDownloadedAt
	}
	if prev != nil || !coord.IsZero() {
		s.upsertTracking(ctx, tr)
	}

	s.deps.Activity.Tuple(ctx, activity.LevelError, op, tuple, coord, dur, msg)
	s.deps.Logger.Error("pipeline failure", errors.New(msg),
		slog.String("tuple", tuple.String()),
		slog.String("op", string(op)))
}

// upsertTracking retries once on a short DB failure, then escalates.
func (s *Scheduler) upsertTracking(ctx context.Context, tr *store.Tracking) {
	if err := s.deps.Store.UpsertTracking(ctx, tr); err != nil {
		if err = s.deps.Store.UpsertTracking(ctx, tr); err != nil {
			s.critical(ctx, fmt.Sprintf("tracking upsert failed: %v", err))
		}
	}
}

func (s *Scheduler) trackingRetry(ctx context.Context, tuple build.Tuple) (*store.Tracking, error) {
	tr, err := s.deps.Store.GetTracking(ctx, tuple.Component.ID, tuple.Branch.ID)
	if err == nil {
		return tr, nil
	}
	return s.deps.Store.GetTracking(ctx, tuple.Component.ID, tuple.Branch.ID)
}

// completedThrough reports whether the tracking row already covers coord with
// a finished download and extraction.
func completedThrough(tr *store.Tracking, coord build.Coordinate) bool {
	return tr != nil &&
		!coord.After(tr.Coordinate) &&
		tr.DownloadStatus == build.StatusCompleted &&
		tr.ExtractionStatus == build.StatusCompleted
}

func coordOrZero(c *build.Coordinate) build.Coordinate {
	if c == nil {
		return build.Coordinate{}
	}
	return *c
}

func probeErrorMessage(err error) string {
	switch {
	case errors.Is(err, jfrog.ErrUnauthorized):
		return fmt.Sprintf("authentication rejected: %v", err)
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return fmt.Sprintf("probe failed: %v", err)
	}
}

func downloadErrorMessage(err error) string {
	switch {
	case errors.Is(err, jfrog.ErrNotFound):
		return "disappeared"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("download timed out: %v", err)
	default:
		return fmt.Sprintf("download failed: %v", err)
	}
}

func extractionErrorMessage(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("extraction timed out: %v", err)
	default:
		return fmt.Sprintf("extraction failed: %v", err)
	}
}
