package download

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/buildforge/wincore/internal/build"
)

// Layout is the GUID-rooted on-disk tree for one component:
//
//	<base>/<guid>/s                      current archive
//	<base>/<guid>/s/history/<date>.<seq> retained archive copies
//	<base>/<guid>/a/<date>.<seq>/<name>  extracted trees
type Layout struct {
	Root        string
	SourceDir   string
	HistoryDir  string
	ArtifactDir string
}

// EnsureLayout validates the component GUID and creates the tree if missing.
// Idempotent.
func EnsureLayout(baseDrive, componentGUID string) (*Layout, error) {
	if _, err := uuid.Parse(componentGUID); err != nil {
		return nil, fmt.Errorf("invalid component GUID %q: %w", componentGUID, err)
	}

	root := filepath.Join(baseDrive, componentGUID)
	l := &Layout{
		Root:        root,
		SourceDir:   filepath.Join(root, "s"),
		HistoryDir:  filepath.Join(root, "s", "history"),
		ArtifactDir: filepath.Join(root, "a"),
	}
	for _, dir := range []string{l.SourceDir, l.HistoryDir, l.ArtifactDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create layout directory %s: %w", dir, err)
		}
	}
	return l, nil
}

// ArchivePath is the current archive, overwritten on every new build.
func (l *Layout) ArchivePath(componentName string) string {
	return filepath.Join(l.SourceDir, componentName+".zip")
}

// HistoryArchivePath is the retained copy for one build.
func (l *Layout) HistoryArchivePath(coord build.Coordinate, componentName string) string {
	return filepath.Join(l.HistoryDir, coord.String(), componentName+".zip")
}

// ExtractionDir is where one build's archive unpacks to.
func (l *Layout) ExtractionDir(coord build.Coordinate, componentName string) string {
	return filepath.Join(l.ArtifactDir, coord.String(), componentName)
}
