// Package activity is the persisted, append-only record of what the engine
// did: one row per meaningful step, plus an optional line-oriented JSON
// stream suitable for log forwarders.
package activity

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/buildforge/wincore/internal/build"
	"github.com/buildforge/wincore/internal/store"
	"github.com/buildforge/wincore/pkg/logger"
)

// Level follows the canonical meanings: DEBUG flow, INFO state changes,
// WARNING recoverable, ERROR tuple failed, CRITICAL scheduler fault.
type Level string

const (
	LevelDebug    Level = "DEBUG"
	LevelInfo     Level = "INFO"
	LevelWarning  Level = "WARNING"
	LevelError    Level = "ERROR"
	LevelCritical Level = "CRITICAL"
)

// Op tags an entry with the pipeline phase that produced it.
type Op string

const (
	OpPoll       Op = "poll"
	OpDownload   Op = "download"
	OpExtraction Op = "extraction"
	OpCleanup    Op = "cleanup"
)

// Entry is one activity record before persistence.
type Entry struct {
	Level      Level
	Op         Op
	Component  *build.Component
	Branch     *build.Branch
	Coordinate build.Coordinate
	Duration   time.Duration
	Message    string
}

// streamLine is the wire shape of the JSONL stream.
type streamLine struct {
	TS        string `json:"ts"`
	Level     string `json:"level"`
	Op        string `json:"op,omitempty"`
	Component string `json:"component,omitempty"`
	Branch    string `json:"branch,omitempty"`
	Build     string `json:"build,omitempty"`
	DurMS     int64  `json:"dur_ms,omitempty"`
	Msg       string `json:"msg"`
}

// Log appends entries to the store's activity table and, when configured, a
// rotated JSONL file. Append failures never fail the caller; they go to the
// process logger instead.
type Log struct {
	store  *store.Store
	log    *logger.Logger
	now    func() time.Time
	mu     sync.Mutex
	stream *lumberjack.Logger
}

// New creates an activity log. streamPath may be empty to disable the JSONL
// stream.
func New(st *store.Store, log *logger.Logger, streamPath string, now func() time.Time) *Log {
	a := &Log{store: st, log: log, now: now}
	if now == nil {
		a.now = time.Now
	}
	if streamPath != "" {
		a.stream = &lumberjack.Logger{
			Filename:   streamPath,
			MaxSize:    50, // MB
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		}
	}
	return a
}

// Append records one entry.
func (a *Log) Append(ctx context.Context, e Entry) {
	ts := a.now()

	row := &store.ActivityRow{
		Timestamp: ts,
		Level:     string(e.Level),
		Operation: string(e.Op),
		Message:   e.Message,
	}
	if e.Component != nil {
		id := e.Component.ID
		row.ComponentID = &id
	}
	if e.Branch != nil {
		id := e.Branch.ID
		row.BranchID = &id
	}
	if !e.Coordinate.IsZero() {
		row.BuildDate = e.Coordinate.Date
		row.BuildSeq = e.Coordinate.Seq
	}
	if e.Duration > 0 {
		ms := e.Duration.Milliseconds()
		row.DurationMS = &ms
	}

	if err := a.store.AppendActivity(ctx, row); err != nil {
		a.log.Warn("activity append failed", slog.String("error", err.Error()))
	}
	a.writeStream(ts, e)
}

func (a *Log) writeStream(ts time.Time, e Entry) {
	if a.stream == nil {
		return
	}
	line := streamLine{
		TS:    ts.UTC().Format(time.RFC3339Nano),
		Level: string(e.Level),
		Op:    string(e.Op),
		DurMS: e.Duration.Milliseconds(),
		Msg:   e.Message,
	}
	if e.Component != nil {
		line.Component = e.Component.Name
	}
	if e.Branch != nil {
		line.Branch = e.Branch.Name
	}
	if !e.Coordinate.IsZero() {
		line.Build = e.Coordinate.String()
	}

	data, err := json.Marshal(line)
	if err != nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stream.Write(append(data, '\n'))
}

// Close flushes and closes the JSONL stream if one is configured.
func (a *Log) Close() error {
	if a.stream == nil {
		return nil
	}
	return a.stream.Close()
}

// Tuple is a convenience for entries scoped to one (component, branch).
func (a *Log) Tuple(ctx context.Context, level Level, op Op, t build.Tuple, coord build.Coordinate, dur time.Duration, msg string) {
	comp := t.Component
	br := t.Branch
	a.Append(ctx, Entry{
		Level:      level,
		Op:         op,
		Component:  &comp,
		Branch:     &br,
		Coordinate: coord,
		Duration:   dur,
		Message:    msg,
	})
}
