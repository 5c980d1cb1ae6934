package workspace

import (
	"fmt"
	"log"
	"os"
)

// Workspace is an isolated per-job scratch directory holding the scene
// script and intermediate media. It is owned exclusively by its job and never
// shared.
type Workspace struct {
	Path  string
	JobID string
}

// Manager allocates and removes job workspaces.
type Manager struct {
	baseDir string
}

// NewManager creates a manager rooted at baseDir; an empty baseDir falls back
// to the system temp directory.
func NewManager(baseDir string) (*Manager, error) {
	if baseDir != "" {
		if err := os.MkdirAll(baseDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create workspace base dir: %w", err)
		}
	}
	return &Manager{baseDir: baseDir}, nil
}

// Acquire creates a uniquely named workspace for the job. The prefix keeps
// generate and combine workspaces tellable apart on disk.
func (m *Manager) Acquire(prefix, jobID string) (*Workspace, error) {
	dir, err := os.MkdirTemp(m.baseDir, fmt.Sprintf("%s_%s_", prefix, jobID))
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	return &Workspace{Path: dir, JobID: jobID}, nil
}

// Release removes the workspace unless retain is set, in which case the
// caller is responsible for any copy-out before external cleanup. Removal
// failures are logged, never escalated: cleanup must not change a job's
// reported result.
func (m *Manager) Release(ws *Workspace, retain bool) {
	if ws == nil {
		return
	}
	if retain {
		log.Printf("[Workspace] Retaining %s for job %s (debug)", ws.Path, ws.JobID)
		return
	}
	if err := os.RemoveAll(ws.Path); err != nil {
		log.Printf("[Workspace] Failed to clean up %s: %v", ws.Path, err)
	}
}
