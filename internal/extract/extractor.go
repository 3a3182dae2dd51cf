// Package extract unpacks downloaded archives into the canonical extraction
// layout, rejecting archives that try to escape their target directory.
package extract

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/buildforge/wincore/pkg/logger"
)

// ErrUnsafeEntry means an archive entry resolves outside the target root
// (absolute path or ".." traversal). The whole archive is rejected.
var ErrUnsafeEntry = errors.New("unsafe archive entry")

// ErrCorruptArchive means the archive could not be read as a ZIP.
var ErrCorruptArchive = errors.New("corrupt archive")

// Result describes a completed extraction.
type Result struct {
	Path      string
	FileCount int
	Bytes     int64
}

// Extractor unpacks ZIP archives.
type Extractor struct {
	timeout time.Duration
	log     *logger.Logger
}

// NewExtractor creates an extractor with the given per-archive timeout.
func NewExtractor(timeout time.Duration, log *logger.Logger) *Extractor {
	return &Extractor{timeout: timeout, log: log}
}

// Extract unpacks archivePath into destDir. Extraction happens in a sibling
// temp directory which is renamed into place on success; on any failure the
// temp directory is removed and destDir is untouched.
func (e *Extractor) Extract(ctx context.Context, archivePath, destDir string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptArchive, err)
	}
	defer reader.Close()

	if err := os.MkdirAll(filepath.Dir(destDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create extraction parent: %w", err)
	}

	tmpDir := destDir + ".partial"
	if err := os.RemoveAll(tmpDir); err != nil {
		return nil, fmt.Errorf("failed to clear stale temp directory: %w", err)
	}
	if err := os.MkdirAll(tmpDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	result := &Result{}
	for _, entry := range reader.File {
		if err := ctx.Err(); err != nil {
			os.RemoveAll(tmpDir)
			return nil, err
		}
		written, err := e.extractEntry(entry, tmpDir)
		if err != nil {
			os.RemoveAll(tmpDir)
			return nil, err
		}
		if !entry.FileInfo().IsDir() {
			result.FileCount++
			result.Bytes += written
		}
	}

	if err := os.RemoveAll(destDir); err != nil {
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("failed to clear destination: %w", err)
	}
	if err := os.Rename(tmpDir, destDir); err != nil {
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("failed to finalize extraction: %w", err)
	}
	result.Path = destDir
	return result, nil
}

// extractEntry writes a single archive entry under root after validating
// that its resolved path stays inside root.
func (e *Extractor) extractEntry(entry *zip.File, root string) (int64, error) {
	// Windows-built archives may carry backslash separators; normalize before
	// validating so traversal cannot hide behind them.
	name := filepath.FromSlash(strings.ReplaceAll(entry.Name, `\`, "/"))
	if filepath.IsAbs(name) || strings.HasPrefix(name, string(filepath.Separator)) {
		return 0, fmt.Errorf("%w: absolute path %q", ErrUnsafeEntry, entry.Name)
	}

	target := filepath.Join(root, name)
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return 0, fmt.Errorf("%w: %q escapes the target root", ErrUnsafeEntry, entry.Name)
	}

	if entry.FileInfo().IsDir() {
		if err := os.MkdirAll(target, 0755); err != nil {
			return 0, fmt.Errorf("failed to create directory %s: %w", rel, err)
		}
		return 0, nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return 0, fmt.Errorf("failed to create parent of %s: %w", rel, err)
	}

	src, err := entry.Open()
	if err != nil {
		return 0, fmt.Errorf("%w: failed to open entry %s: %v", ErrCorruptArchive, entry.Name, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", rel, err)
	}
	written, err := io.Copy(dst, src)
	if err != nil {
		dst.Close()
		return 0, fmt.Errorf("failed to write %s: %w", rel, err)
	}
	if err := dst.Close(); err != nil {
		return 0, fmt.Errorf("failed to close %s: %w", rel, err)
	}
	return written, nil
}
