package build

import (
	"fmt"
	"time"
)

// Component is a catalog entry managed outside the engine. The engine treats
// it as read-only.
type Component struct {
	ID          int64
	GUID        string
	Name        string
	ProjectKey  string
	URLTemplate string // optional per-component override, empty = default
}

// Branch belongs to exactly one component. Names are free-form and may
// contain slashes (e.g. "feature/x").
type Branch struct {
	ID          int64
	ComponentID int64
	Name        string
}

// PollingConfig is the per-component polling cadence, read-only to the core.
type PollingConfig struct {
	Enabled           bool
	IntervalSeconds   int
	RetryAttempts     int
	DownloadTimeout   time.Duration
	ExtractionTimeout time.Duration
}

// Interval returns the polling interval, falling back to def when the row
// carries no usable value. Intervals are clamped to at least 30 seconds.
func (p PollingConfig) Interval(def time.Duration) time.Duration {
	iv := time.Duration(p.IntervalSeconds) * time.Second
	if iv <= 0 {
		iv = def
	}
	if iv < 30*time.Second {
		iv = 30 * time.Second
	}
	return iv
}

// Tuple is the unit of scheduling and retention: one (component, branch) pair.
type Tuple struct {
	Component Component
	Branch    Branch
}

// Key returns the stable identity used for locks, in-flight markers and
// cadence bookkeeping.
func (t Tuple) Key() string {
	return fmt.Sprintf("%d/%d", t.Component.ID, t.Branch.ID)
}

func (t Tuple) String() string {
	return fmt.Sprintf("%s@%s", t.Component.Name, t.Branch.Name)
}

// Status is the download / extraction state recorded on a tracking row.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)
