package diagnostics

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// probeTimeout bounds every capability check so a wedged tool cannot stall
// startup or a request.
const probeTimeout = 10 * time.Second

// trialDocument is the minimal typeset document compiled to prove the LaTeX
// toolchain actually works, not merely that a binary exists.
const trialDocument = "\\documentclass{article}\n\\begin{document}\nx\n\\end{document}\n"

// Capability describes the availability of one external tool.
type Capability struct {
	Name      string
	Available bool
	Path      string
	Detail    string
	Hint      string
}

// Checker probes the external tools this service depends on. OS dependencies
// are injectable so checks can be exercised without spawning anything.
type Checker struct {
	manimBinary  string
	ffmpegBinary string
	latexBinary  string

	lookPath func(string) (string, error)
	runProbe func(ctx context.Context, dir, name string, args ...string) error
	mkdirTmp func(dir, pattern string) (string, error)
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker(manimBinary, ffmpegBinary, latexBinary string) *Checker {
	return &Checker{
		manimBinary:  manimBinary,
		ffmpegBinary: ffmpegBinary,
		latexBinary:  latexBinary,
		lookPath:     exec.LookPath,
		runProbe:     runProbe,
		mkdirTmp:     os.MkdirTemp,
	}
}

// NewCheckerForTests creates a checker with injectable dependencies.
func NewCheckerForTests(
	manimBinary, ffmpegBinary, latexBinary string,
	lookPath func(string) (string, error),
	run func(ctx context.Context, dir, name string, args ...string) error,
	mkdirTmp func(dir, pattern string) (string, error),
) *Checker {
	return &Checker{
		manimBinary:  manimBinary,
		ffmpegBinary: ffmpegBinary,
		latexBinary:  latexBinary,
		lookPath:     lookPath,
		runProbe:     run,
		mkdirTmp:     mkdirTmp,
	}
}

// CheckManim verifies the rendering engine is on PATH.
func (c *Checker) CheckManim() Capability {
	cap := Capability{Name: c.manimBinary}
	path, err := c.lookPath(c.manimBinary)
	if err != nil {
		cap.Detail = fmt.Sprintf("not found in PATH: %s", c.manimBinary)
		cap.Hint = "install manim and ensure the binary is on PATH"
		return cap
	}
	cap.Available = true
	cap.Path = path
	return cap
}

// CheckFFmpeg verifies the AV tool runs at all.
func (c *Checker) CheckFFmpeg(ctx context.Context) Capability {
	cap := Capability{Name: c.ffmpegBinary}
	path, err := c.lookPath(c.ffmpegBinary)
	if err != nil {
		cap.Detail = fmt.Sprintf("not found in PATH: %s", c.ffmpegBinary)
		cap.Hint = "install ffmpeg; audio muxing and concatenation need it"
		return cap
	}
	if err := c.runProbe(ctx, "", path, "-version"); err != nil {
		cap.Detail = fmt.Sprintf("%s -version failed: %v", c.ffmpegBinary, err)
		return cap
	}
	cap.Available = true
	cap.Path = path
	return cap
}

// CheckLatex verifies the typesetting toolchain by compiling a trivial
// document under a short timeout. Any failure, including a non-zero exit,
// counts as unavailable. The result is never cached; math-markup fallback
// decisions need the live answer.
func (c *Checker) CheckLatex(ctx context.Context) Capability {
	cap := Capability{Name: c.latexBinary}

	path, err := c.lookPath(c.latexBinary)
	if err != nil {
		cap.Detail = fmt.Sprintf("not found in PATH: %s", c.latexBinary)
		cap.Hint = "install a LaTeX distribution (e.g. TeX Live) to render math markup natively"
		return cap
	}
	cap.Path = path

	dir, err := c.mkdirTmp("", "latex_probe_")
	if err != nil {
		cap.Detail = fmt.Sprintf("cannot create probe directory: %v", err)
		return cap
	}
	defer os.RemoveAll(dir)

	docPath := filepath.Join(dir, "probe.tex")
	if err := os.WriteFile(docPath, []byte(trialDocument), 0o644); err != nil {
		cap.Detail = fmt.Sprintf("cannot write probe document: %v", err)
		return cap
	}

	if err := c.runProbe(ctx, dir, path, "-interaction=nonstopmode", "-halt-on-error", docPath); err != nil {
		cap.Detail = fmt.Sprintf("trial compile failed: %v", err)
		cap.Hint = "install a LaTeX distribution (e.g. TeX Live) to render math markup natively"
		return cap
	}

	cap.Available = true
	return cap
}

// LatexAvailable is the probe handed to the source transformer.
func (c *Checker) LatexAvailable(ctx context.Context) bool {
	return c.CheckLatex(ctx).Available
}

func runProbe(ctx context.Context, dir, name string, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.Run()
}
