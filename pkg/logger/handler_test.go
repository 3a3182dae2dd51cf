package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestHandlerRendersLevelAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	log := slog.New(h)

	log.Info("download complete", slog.String("tuple", "Svc@main"), slog.Int("bytes", 2048))

	out := buf.String()
	for _, want := range []string{"INFO", "download complete", "tuple=", "Svc@main", "bytes=", "2048"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %q", want, out)
		}
	}
	if !strings.HasSuffix(out, "\n") {
		t.Error("output not newline terminated")
	}
}

func TestHandlerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})

	if h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug enabled at info level")
	}
	if !h.Enabled(context.Background(), slog.LevelWarn) {
		t.Error("warn disabled at info level")
	}
}

func TestHandlerWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(&buf, nil)
	log := slog.New(h.WithAttrs([]slog.Attr{slog.String("component", "Svc")}))

	log.Info("probe complete")
	if !strings.Contains(buf.String(), "component=") {
		t.Errorf("bound attr missing: %q", buf.String())
	}

	// The original handler is unchanged.
	buf.Reset()
	slog.New(h).Info("plain")
	if strings.Contains(buf.String(), "component=") {
		t.Errorf("attr leaked into base handler: %q", buf.String())
	}
}
