package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

const frameName = "frame_%06d.png"

// Workspace is a per-job scratch directory holding a numbered frame sequence.
type Workspace struct {
	dir string
}

// Dir returns the workspace directory.
func (w *Workspace) Dir() string {
	return w.dir
}

// FramePath returns the path of frame i.
func (w *Workspace) FramePath(i int) string {
	return filepath.Join(w.dir, fmt.Sprintf(frameName, i))
}

// FramePattern returns the printf-style pattern matching every FramePath.
func (w *Workspace) FramePattern() string {
	return filepath.Join(w.dir, frameName)
}

// Remove deletes the workspace and everything in it.
func (w *Workspace) Remove() error {
	if err := os.RemoveAll(w.dir); err != nil {
		return fmt.Errorf("remove workspace %s: %w", w.dir, err)
	}
	return nil
}
