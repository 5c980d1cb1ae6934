package workspace

import (
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// Archiver persists debugging material from a workspace before teardown:
// the transformed scene script, the raw pre-transform source when one was
// kept, and any engine log files. Disabled it is a no-op.
type Archiver struct {
	enabled bool
	dir     string
}

func NewArchiver(enabled bool, dir string) *Archiver {
	return &Archiver{enabled: enabled, dir: dir}
}

// Enabled reports whether archiving (and therefore workspace retention) is on.
func (a *Archiver) Enabled() bool {
	return a.enabled
}

// Archive copies the job's debug material into a persistent per-job
// directory. Failures are logged only; archiving must never affect the job's
// outcome.
func (a *Archiver) Archive(ws *Workspace) {
	if !a.enabled || ws == nil {
		return
	}

	dest := filepath.Join(a.dir, ws.JobID)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		log.Printf("[Archive] Failed to create %s: %v", dest, err)
		return
	}

	count := 0
	err := filepath.WalkDir(ws.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		name := d.Name()
		if !strings.HasSuffix(name, ".py") && !strings.HasSuffix(name, ".log") {
			return nil
		}
		if cerr := copyInto(path, filepath.Join(dest, name)); cerr != nil {
			log.Printf("[Archive] Failed to copy %s: %v", path, cerr)
			return nil
		}
		count++
		return nil
	})
	if err != nil {
		log.Printf("[Archive] Walk of %s failed: %v", ws.Path, err)
		return
	}

	log.Printf("[Archive] Saved %d file(s) for job %s to %s", count, ws.JobID, dest)
}

func copyInto(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
