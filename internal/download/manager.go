// Package download streams archives from the artifact repository into the
// canonical on-disk layout, verifying size and checksum.
package download

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/buildforge/wincore/internal/build"
	"github.com/buildforge/wincore/pkg/logger"
)

// copyBufSize keeps downloads in constant memory.
const copyBufSize = 64 * 1024

// ErrSizeMismatch means the bytes on disk disagree with the Content-Length
// the server announced.
var ErrSizeMismatch = errors.New("size mismatch")

// ErrChecksumMismatch means the upstream checksum header disagrees with the
// computed digest.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// Source is the slice of the repository client the manager needs.
type Source interface {
	BuildURL(comp build.Component, branch string, coord build.Coordinate) (string, error)
	OpenStream(ctx context.Context, url string) (io.ReadCloser, int64, string, error)
}

// Result describes a completed download.
type Result struct {
	URL          string
	ArchivePath  string // current archive (s/<name>.zip)
	HistoryPath  string // retained copy (s/history/<coord>/<name>.zip)
	SizeBytes    int64
	Checksum     string
	DownloadedAt time.Time
}

// Manager downloads archives. Per-tuple serialization is the scheduler's
// job; the manager only assumes no two downloads for the same tuple run
// concurrently.
type Manager struct {
	source    Source
	baseDrive string
	timeout   time.Duration
	log       *logger.Logger
}

// NewManager creates a download manager rooted at baseDrive.
func NewManager(source Source, baseDrive string, timeout time.Duration, log *logger.Logger) *Manager {
	return &Manager{
		source:    source,
		baseDrive: baseDrive,
		timeout:   timeout,
		log:       log,
	}
}

// Download streams one build's archive to disk and returns its location,
// size and checksum. On any failure the partial file is removed.
func (m *Manager) Download(ctx context.Context, comp build.Component, branch string, coord build.Coordinate) (*Result, error) {
	layout, err := EnsureLayout(m.baseDrive, comp.GUID)
	if err != nil {
		return nil, err
	}

	url, err := m.source.BuildURL(comp, branch, coord)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	body, contentLength, upstreamSum, err := m.source.OpenStream(ctx, url)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	historyPath := layout.HistoryArchivePath(coord, comp.Name)
	if err := os.MkdirAll(filepath.Dir(historyPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	tmpPath := historyPath + ".partial"
	size, checksum, err := m.streamToFile(ctx, body, tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return nil, err
	}

	if contentLength >= 0 && size != contentLength {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("%w: got %d bytes, expected %d", ErrSizeMismatch, size, contentLength)
	}
	if upstreamSum != "" {
		if !strings.EqualFold(upstreamSum, checksum) {
			os.Remove(tmpPath)
			return nil, fmt.Errorf("%w: upstream %s, computed %s", ErrChecksumMismatch, upstreamSum, checksum)
		}
	} else {
		m.log.Debug("no upstream checksum header, skipping verification",
			slog.String("url", url))
	}

	if err := os.Rename(tmpPath, historyPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}

	// The current archive is a convenience copy, overwritten per build.
	archivePath := layout.ArchivePath(comp.Name)
	if err := copyFile(historyPath, archivePath); err != nil {
		m.log.Warn("failed to refresh current archive copy",
			slog.String("path", archivePath),
			slog.String("error", err.Error()))
	}

	return &Result{
		URL:          url,
		ArchivePath:  archivePath,
		HistoryPath:  historyPath,
		SizeBytes:    size,
		Checksum:     checksum,
		DownloadedAt: time.Now(),
	}, nil
}

// streamToFile copies the body to path through a fixed-size buffer, hashing
// as it goes and checking for cancellation at buffer boundaries. The file is
// fsynced before close.
func (m *Manager) streamToFile(ctx context.Context, body io.Reader, path string) (int64, string, error) {
	out, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return 0, "", fmt.Errorf("failed to create file: %w", err)
	}

	hash := sha256.New()
	buf := make([]byte, copyBufSize)
	var written int64

	for {
		if err := ctx.Err(); err != nil {
			out.Close()
			return 0, "", err
		}
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				out.Close()
				return 0, "", fmt.Errorf("failed to write archive: %w", err)
			}
			hash.Write(buf[:n])
			written += int64(n)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			out.Close()
			if ctx.Err() != nil {
				return 0, "", ctx.Err()
			}
			return 0, "", fmt.Errorf("failed to read archive stream: %w", readErr)
		}
	}

	if err := out.Sync(); err != nil {
		out.Close()
		return 0, "", fmt.Errorf("failed to sync archive: %w", err)
	}
	if err := out.Close(); err != nil {
		return 0, "", fmt.Errorf("failed to close archive: %w", err)
	}
	return written, fmt.Sprintf("%x", hash.Sum(nil)), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".partial"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
