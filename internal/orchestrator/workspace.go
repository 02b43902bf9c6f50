package orchestrator

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// jobWorkspace is the per-job temporary directory every downloaded trailer,
// intermediate clip, poster canvas, and script file lives under. Cleanup
// runs on every exit path — success, failure, cancellation — via the defer
// the orchestrator registers at job start.
type jobWorkspace struct {
	dir string
}

func newJobWorkspace(root, jobID string) (*jobWorkspace, error) {
	dir := filepath.Join(root, "jobs", jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create job workspace %s: %w", dir, err)
	}
	return &jobWorkspace{dir: dir}, nil
}

// Path joins elems under the workspace directory.
func (w *jobWorkspace) Path(elems ...string) string {
	return filepath.Join(append([]string{w.dir}, elems...)...)
}

// Cleanup removes the workspace and everything in it.
func (w *jobWorkspace) Cleanup() {
	if err := os.RemoveAll(w.dir); err != nil {
		log.Printf("[workspace] failed to remove %s: %v", w.dir, err)
	}
}
