package activity

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/buildforge/wincore/internal/build"
	"github.com/buildforge/wincore/internal/store"
	"github.com/buildforge/wincore/pkg/logger"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "wincore.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendPersistsRow(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	at := time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)
	a := New(s, logger.NewNop(), "", func() time.Time { return at })

	comp := build.Component{ID: 7, Name: "Svc"}
	br := build.Branch{ID: 3, Name: "main"}
	a.Tuple(ctx, LevelInfo, OpDownload,
		build.Tuple{Component: comp, Branch: br},
		build.Coordinate{Date: "20250310", Seq: 4},
		1500*time.Millisecond,
		"downloaded 2048 bytes")

	rows, err := s.RecentActivity(ctx, 1)
	if err != nil {
		t.Fatalf("RecentActivity: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows", len(rows))
	}
	row := rows[0]
	if row.Level != "INFO" || row.Operation != "download" {
		t.Errorf("level/op = %s/%s", row.Level, row.Operation)
	}
	if row.ComponentID == nil || *row.ComponentID != 7 {
		t.Errorf("component id = %v", row.ComponentID)
	}
	if row.BranchID == nil || *row.BranchID != 3 {
		t.Errorf("branch id = %v", row.BranchID)
	}
	if row.BuildDate != "20250310" || row.BuildSeq != 4 {
		t.Errorf("build = %s.%d", row.BuildDate, row.BuildSeq)
	}
	if row.DurationMS == nil || *row.DurationMS != 1500 {
		t.Errorf("duration = %v", row.DurationMS)
	}
	if !row.Timestamp.Equal(at) {
		t.Errorf("timestamp = %v", row.Timestamp)
	}
}

func TestStreamWritesJSONL(t *testing.T) {
	s := testStore(t)
	streamPath := filepath.Join(t.TempDir(), "activity.jsonl")

	at := time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)
	a := New(s, logger.NewNop(), streamPath, func() time.Time { return at })

	comp := build.Component{ID: 1, Name: "Svc"}
	br := build.Branch{ID: 2, Name: "feature/x"}
	a.Tuple(context.Background(), LevelError, OpExtraction,
		build.Tuple{Component: comp, Branch: br},
		build.Coordinate{Date: "20250310", Seq: 9},
		0, "extraction failed: corrupt archive")
	a.Append(context.Background(), Entry{Level: LevelCritical, Message: "scheduler fault"})
	if err := a.Close(); err != nil {
		t.Fatalf("close stream: %v", err)
	}

	f, err := os.Open(streamPath)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer f.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var m map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &m); err != nil {
			t.Fatalf("bad JSONL line %q: %v", scanner.Text(), err)
		}
		lines = append(lines, m)
	}
	if len(lines) != 2 {
		t.Fatalf("got %d stream lines", len(lines))
	}

	first := lines[0]
	if first["level"] != "ERROR" || first["op"] != "extraction" {
		t.Errorf("level/op = %v/%v", first["level"], first["op"])
	}
	if first["component"] != "Svc" || first["branch"] != "feature/x" {
		t.Errorf("component/branch = %v/%v", first["component"], first["branch"])
	}
	if first["build"] != "20250310.9" {
		t.Errorf("build = %v", first["build"])
	}
	if first["ts"] != at.UTC().Format(time.RFC3339Nano) {
		t.Errorf("ts = %v", first["ts"])
	}

	// Entries with no tuple omit the tuple fields entirely.
	second := lines[1]
	if _, ok := second["component"]; ok {
		t.Error("tuple-less entry carries a component field")
	}
	if second["level"] != "CRITICAL" {
		t.Errorf("level = %v", second["level"])
	}
}

func TestStreamDisabledWhenPathEmpty(t *testing.T) {
	s := testStore(t)
	a := New(s, logger.NewNop(), "", nil)
	a.Append(context.Background(), Entry{Level: LevelInfo, Message: "no stream"})
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
