package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/buildforge/wincore/internal/build"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "wincore.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedTuple(t *testing.T, s *Store, compName, branchName string) (int64, int64) {
	t.Helper()
	ctx := context.Background()
	compID, err := s.SeedComponent(ctx, build.Component{
		GUID:       "7f3c2a10-9d4e-4b6f-8a21-5c0e9f1d2b3a",
		Name:       compName,
		ProjectKey: "ACME",
	}, build.PollingConfig{
		Enabled:         true,
		IntervalSeconds: 60,
		RetryAttempts:   3,
	})
	require.NoError(t, err)
	branchID, err := s.SeedBranch(ctx, compID, branchName)
	require.NoError(t, err)
	return compID, branchID
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wincore.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Close())

	// Re-opening an existing database re-applies the schema harmlessly.
	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
	require.NoError(t, s2.Ping(context.Background()))
}

func TestActiveConfigsJoin(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	compID, branchID := seedTuple(t, s, "PaymentSvc", "main")
	_, err := s.SeedBranch(ctx, compID, "develop")
	require.NoError(t, err)

	// A disabled branch must not appear.
	disabledID, err := s.SeedBranch(ctx, compID, "stale")
	require.NoError(t, err)
	_, err = s.conn.Exec(`UPDATE component_branches SET is_enabled = 0 WHERE id = ?`, disabledID)
	require.NoError(t, err)

	configs, err := s.ActiveConfigs(ctx)
	require.NoError(t, err)
	require.Len(t, configs, 2)

	first := configs[0]
	require.Equal(t, compID, first.Component.ID)
	require.Equal(t, "PaymentSvc", first.Component.Name)
	require.Equal(t, branchID, first.Branch.ID)
	require.Equal(t, compID, first.Branch.ComponentID)
	require.Equal(t, 60, first.Polling.IntervalSeconds)
	require.True(t, first.Polling.Enabled)
}

func TestActiveConfigsSkipsDisabledPolling(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	compID, err := s.SeedComponent(ctx, build.Component{
		GUID: "aaaaaaaa-0000-0000-0000-000000000001", Name: "Quiet", ProjectKey: "ACME",
	}, build.PollingConfig{Enabled: false, IntervalSeconds: 60})
	require.NoError(t, err)
	_, err = s.SeedBranch(ctx, compID, "main")
	require.NoError(t, err)

	configs, err := s.ActiveConfigs(ctx)
	require.NoError(t, err)
	require.Empty(t, configs)
}

func TestSystemConfigRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetSystemConfig(ctx, "BaseDrive", "/srv/artifacts", false))
	require.NoError(t, s.SetSystemConfig(ctx, "SVCJFROGPAS", "hunter2", true))
	// Upsert replaces.
	require.NoError(t, s.SetSystemConfig(ctx, "BaseDrive", "/mnt/artifacts", false))

	values, err := s.SystemConfig(ctx)
	require.NoError(t, err)
	require.Equal(t, "/mnt/artifacts", values["BaseDrive"])
	require.Equal(t, "hunter2", values["SVCJFROGPAS"])
}

func TestTrackingLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	compID, branchID := seedTuple(t, s, "PaymentSvc", "main")

	// Never-discovered tuple has no row.
	tr, err := s.GetTracking(ctx, compID, branchID)
	require.NoError(t, err)
	require.Nil(t, tr)

	now := time.Now().UTC()
	require.NoError(t, s.UpsertTracking(ctx, &Tracking{
		ComponentID:      compID,
		BranchID:         branchID,
		Coordinate:       build.Coordinate{Date: "20250310", Seq: 2},
		ArtifactURL:      "https://repo/x.zip",
		LastCheckedAt:    &now,
		DownloadStatus:   build.StatusDownloading,
		ExtractionStatus: build.StatusPending,
	}))

	tr, err = s.GetTracking(ctx, compID, branchID)
	require.NoError(t, err)
	require.NotNil(t, tr)
	require.Equal(t, build.Coordinate{Date: "20250310", Seq: 2}, tr.Coordinate)
	require.Equal(t, build.StatusDownloading, tr.DownloadStatus)

	// Completing the same build updates statuses in place.
	require.NoError(t, s.UpsertTracking(ctx, &Tracking{
		ComponentID:      compID,
		BranchID:         branchID,
		Coordinate:       build.Coordinate{Date: "20250310", Seq: 2},
		ArtifactURL:      "https://repo/x.zip",
		LastCheckedAt:    &now,
		DownloadStatus:   build.StatusCompleted,
		ExtractionStatus: build.StatusCompleted,
		DownloadPath:     "/srv/a/x.zip",
		SizeBytes:        1234,
	}))

	tr, err = s.GetTracking(ctx, compID, branchID)
	require.NoError(t, err)
	require.Equal(t, build.StatusCompleted, tr.DownloadStatus)
	require.Equal(t, int64(1234), tr.SizeBytes)

	rows, err := s.ListTracking(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestUpsertTrackingCoordinateIsMonotonic(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	compID, branchID := seedTuple(t, s, "PaymentSvc", "main")

	newer := build.Coordinate{Date: "20250310", Seq: 5}
	require.NoError(t, s.UpsertTracking(ctx, &Tracking{
		ComponentID: compID, BranchID: branchID, Coordinate: newer,
		DownloadStatus: build.StatusCompleted, ExtractionStatus: build.StatusCompleted,
	}))

	// A stale writer carrying an older coordinate must not move it backwards.
	older := build.Coordinate{Date: "20250309", Seq: 9}
	require.NoError(t, s.UpsertTracking(ctx, &Tracking{
		ComponentID: compID, BranchID: branchID, Coordinate: older,
		DownloadStatus: build.StatusFailed, ExtractionStatus: build.StatusPending,
		ErrorMessage: "late failure",
	}))

	tr, err := s.GetTracking(ctx, compID, branchID)
	require.NoError(t, err)
	require.Equal(t, newer, tr.Coordinate)
	// Statuses and the error message still refresh.
	require.Equal(t, build.StatusFailed, tr.DownloadStatus)
	require.Equal(t, "late failure", tr.ErrorMessage)
}

func TestTouchTracking(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	compID, branchID := seedTuple(t, s, "PaymentSvc", "main")

	// Touching a missing row is a no-op, not an error.
	require.NoError(t, s.TouchTracking(ctx, compID, branchID, time.Now()))

	first := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpsertTracking(ctx, &Tracking{
		ComponentID: compID, BranchID: branchID,
		Coordinate:     build.Coordinate{Date: "20250310", Seq: 1},
		LastCheckedAt:  &first,
		DownloadStatus: build.StatusCompleted, ExtractionStatus: build.StatusCompleted,
	}))

	later := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.TouchTracking(ctx, compID, branchID, later))

	tr, err := s.GetTracking(ctx, compID, branchID)
	require.NoError(t, err)
	require.NotNil(t, tr.LastCheckedAt)
	require.True(t, tr.LastCheckedAt.Equal(later))
	require.Equal(t, build.Coordinate{Date: "20250310", Seq: 1}, tr.Coordinate)
}

func TestHistorySoftDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	compID, branchID := seedTuple(t, s, "PaymentSvc", "main")

	var ids []int64
	for seq := 1; seq <= 3; seq++ {
		h := &HistoryEntry{
			ComponentID:  compID,
			BranchID:     branchID,
			Coordinate:   build.Coordinate{Date: "20250310", Seq: seq},
			DownloadPath: filepath.Join("/srv", "h", build.Coordinate{Date: "20250310", Seq: seq}.String(), "Svc.zip"),
			DownloadedAt: time.Now().UTC(),
		}
		require.NoError(t, s.AppendHistory(ctx, h))
		require.NotZero(t, h.ID)
		ids = append(ids, h.ID)
	}

	active, err := s.ActiveHistory(ctx, compID, branchID)
	require.NoError(t, err)
	require.Len(t, active, 3)
	// Newest first.
	require.Equal(t, 3, active[0].Coordinate.Seq)
	require.Equal(t, 1, active[2].Coordinate.Seq)

	deletedAt := time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.MarkHistoryDeleted(ctx, ids[:1], deletedAt))

	active, err = s.ActiveHistory(ctx, compID, branchID)
	require.NoError(t, err)
	require.Len(t, active, 2)

	// The row survives with its deletion timestamp.
	all, err := s.HistoryForTuple(ctx, compID, branchID)
	require.NoError(t, err)
	require.Len(t, all, 3)
	oldest := all[2]
	require.True(t, oldest.Deleted)
	require.NotNil(t, oldest.DeletedAt)

	// Marking again keeps the original timestamp.
	require.NoError(t, s.MarkHistoryDeleted(ctx, ids[:1], deletedAt.Add(48*time.Hour)))
	all, err = s.HistoryForTuple(ctx, compID, branchID)
	require.NoError(t, err)
	require.True(t, all[2].DeletedAt.Equal(*oldest.DeletedAt))
}

func TestHistoryDownloadPathReusableAfterDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	compID, branchID := seedTuple(t, s, "PaymentSvc", "main")

	h := &HistoryEntry{
		ComponentID:  compID,
		BranchID:     branchID,
		Coordinate:   build.Coordinate{Date: "20250310", Seq: 1},
		DownloadPath: "/srv/h/20250310.1/Svc.zip",
		DownloadedAt: time.Now().UTC(),
	}
	require.NoError(t, s.AppendHistory(ctx, h))

	// A second live row for the same path violates uniqueness.
	dup := *h
	dup.ID = 0
	require.Error(t, s.AppendHistory(ctx, &dup))

	// Once the first row is soft-deleted the path can be recorded again.
	require.NoError(t, s.MarkHistoryDeleted(ctx, []int64{h.ID}, time.Now()))
	require.NoError(t, s.AppendHistory(ctx, &dup))
}

func TestActivityAppendAndPurge(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	for _, ts := range []time.Time{old, recent} {
		require.NoError(t, s.AppendActivity(ctx, &ActivityRow{
			Timestamp: ts,
			Level:     "INFO",
			Operation: "poll",
			Message:   "probe complete",
		}))
	}

	purged, err := s.PurgeActivity(ctx, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.EqualValues(t, 1, purged)

	rows, err := s.RecentActivity(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "probe complete", rows[0].Message)
	require.True(t, rows[0].Timestamp.Equal(recent))
}
