package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ScriptName is the file the final scene source is written to inside a
// workspace before the renderer is invoked.
const ScriptName = "scene.py"

// RenderResult captures one rendering-engine invocation verbatim. A timed
// out result carries no further classification.
type RenderResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
}

// latexErrorMarkers identify renderer failures caused by the LaTeX toolchain
// rather than the scene code itself. Manim surfaces these on either stream.
var latexErrorMarkers = []string{
	"LaTeX Error",
	"Undefined control sequence",
	"latex error converting to dvi",
	"! LaTeX",
	"latex failed but did not produce a log file",
	"FileNotFoundError: [Errno 2] No such file or directory: 'latex'",
}

// ManimService invokes the manim CLI against a workspace-local script.
type ManimService struct {
	binary  string
	timeout time.Duration
	run     RunFunc
}

func NewManimService(binary string, timeout time.Duration) *ManimService {
	return &ManimService{
		binary:  binary,
		timeout: timeout,
		run:     runCommand,
	}
}

// NewManimServiceForTests builds a service with an injected runner.
func NewManimServiceForTests(binary string, timeout time.Duration, run RunFunc) *ManimService {
	return &ManimService{binary: binary, timeout: timeout, run: run}
}

// Timeout returns the configured render budget.
func (s *ManimService) Timeout() time.Duration {
	return s.timeout
}

// Render writes finalSource into the workspace and runs the engine against
// it. The output filename embeds both the entry scene and the job id, and the
// media directory is scoped to the workspace so concurrent jobs never collide.
// The returned error covers only invocation problems (script write, process
// start); engine failures are reported through RenderResult for the caller to
// classify.
func (s *ManimService) Render(ctx context.Context, workspaceDir, finalSource, entry, jobID string) (RenderResult, error) {
	scriptPath := filepath.Join(workspaceDir, ScriptName)
	if err := os.WriteFile(scriptPath, []byte(finalSource), 0o644); err != nil {
		return RenderResult{}, fmt.Errorf("failed to write scene script: %w", err)
	}

	args := []string{
		scriptPath,
		entry,
		"-qh",
		"--output_file", fmt.Sprintf("%s_%s", entry, jobID),
		"--media_dir", filepath.Join(workspaceDir, "media"),
	}

	log.Printf("[Manim] Rendering scene %s for job %s", entry, jobID)

	res := s.run(ctx, s.timeout, workspaceDir, s.binary, args...)
	if res.StartErr != nil {
		return RenderResult{}, fmt.Errorf("failed to start manim: %w", res.StartErr)
	}

	return RenderResult{
		ExitCode: res.ExitCode,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		TimedOut: res.TimedOut,
	}, nil
}

// ClassifyRenderFailure turns a failed RenderResult into the matching error
// type. LaTeX-specific markers are checked first; the remediation hint is
// attached only when the availability probe confirms the toolchain is absent.
func ClassifyRenderFailure(res RenderResult, latexAvailable bool, timeout time.Duration) error {
	if res.TimedOut {
		return &TimeoutError{Phase: "video generation", Limit: timeout}
	}

	combined := res.Stdout + "\n" + res.Stderr
	for _, marker := range latexErrorMarkers {
		if strings.Contains(combined, marker) {
			terr := &TypesettingError{
				TranscodeError: TranscodeError{Op: "manim rendering", Stdout: res.Stdout, Stderr: res.Stderr},
			}
			if !latexAvailable {
				terr.Hint = "install a LaTeX distribution (e.g. TeX Live) or rely on the plain-text fallback"
			}
			return terr
		}
	}

	return &TranscodeError{Op: "manim rendering", Stdout: res.Stdout, Stderr: res.Stderr}
}
