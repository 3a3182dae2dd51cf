package config

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"
)

// File is the bootstrap configuration read before the database is open. It
// carries only what the system_config table cannot: where that table lives,
// and process-local knobs.
type File struct {
	DatabasePath         string `yaml:"database_path"`
	ActivityStreamPath   string `yaml:"activity_stream_path,omitempty"`
	TickIntervalSeconds  int    `yaml:"tick_interval_seconds,omitempty"`
	ShutdownGraceSeconds int    `yaml:"shutdown_grace_seconds,omitempty"`
}

// Load reads a bootstrap file from disk.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if f.DatabasePath == "" {
		return nil, fmt.Errorf("%s: database_path is required", path)
	}
	return &f, nil
}

// TickInterval returns the scheduler tick interval (default 5 s).
func (f *File) TickInterval() time.Duration {
	if f.TickIntervalSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(f.TickIntervalSeconds) * time.Second
}

// ShutdownGrace returns how long to wait for in-flight pipelines on stop
// (default 60 s).
func (f *File) ShutdownGrace() time.Duration {
	if f.ShutdownGraceSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(f.ShutdownGraceSeconds) * time.Second
}
