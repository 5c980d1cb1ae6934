package diagnostics

import (
	"context"
	"errors"
	"os"
	"testing"
)

func foundLookPath(path string) func(string) (string, error) {
	return func(string) (string, error) { return path, nil }
}

func missingLookPath(string) (string, error) {
	return "", errors.New("executable file not found in $PATH")
}

func TestCheckManim(t *testing.T) {
	c := NewCheckerForTests("manim", "ffmpeg", "latex",
		foundLookPath("/usr/bin/manim"), nil, os.MkdirTemp)

	cap := c.CheckManim()
	if !cap.Available || cap.Path != "/usr/bin/manim" {
		t.Errorf("unexpected capability: %+v", cap)
	}

	c = NewCheckerForTests("manim", "ffmpeg", "latex", missingLookPath, nil, os.MkdirTemp)
	cap = c.CheckManim()
	if cap.Available {
		t.Error("missing binary reported available")
	}
	if cap.Hint == "" {
		t.Error("missing binary should carry an install hint")
	}
}

func TestCheckFFmpeg(t *testing.T) {
	ran := false
	okRun := func(ctx context.Context, dir, name string, args ...string) error {
		ran = true
		if len(args) != 1 || args[0] != "-version" {
			t.Errorf("unexpected probe args: %v", args)
		}
		return nil
	}

	c := NewCheckerForTests("manim", "ffmpeg", "latex",
		foundLookPath("/usr/bin/ffmpeg"), okRun, os.MkdirTemp)

	cap := c.CheckFFmpeg(context.Background())
	if !cap.Available || !ran {
		t.Errorf("expected a successful probe, got %+v", cap)
	}

	failRun := func(ctx context.Context, dir, name string, args ...string) error {
		return errors.New("exit status 1")
	}
	c = NewCheckerForTests("manim", "ffmpeg", "latex",
		foundLookPath("/usr/bin/ffmpeg"), failRun, os.MkdirTemp)
	if cap := c.CheckFFmpeg(context.Background()); cap.Available {
		t.Error("failing probe reported available")
	}
}

func TestCheckLatexCompilesTrialDocument(t *testing.T) {
	var compiled string
	okRun := func(ctx context.Context, dir, name string, args ...string) error {
		compiled = args[len(args)-1]
		data, err := os.ReadFile(compiled)
		if err != nil {
			return err
		}
		if string(data) != trialDocument {
			t.Errorf("unexpected probe document: %q", data)
		}
		return nil
	}

	c := NewCheckerForTests("manim", "ffmpeg", "latex",
		foundLookPath("/usr/bin/latex"), okRun, os.MkdirTemp)

	cap := c.CheckLatex(context.Background())
	if !cap.Available {
		t.Fatalf("expected available, got %+v", cap)
	}
	if compiled == "" {
		t.Fatal("trial compile never ran")
	}
	// The probe directory must not be left behind.
	if _, err := os.Stat(compiled); !os.IsNotExist(err) {
		t.Errorf("probe directory not cleaned up, stat err: %v", err)
	}
}

func TestCheckLatexNonZeroExitMeansUnavailable(t *testing.T) {
	failRun := func(ctx context.Context, dir, name string, args ...string) error {
		return errors.New("exit status 1")
	}
	c := NewCheckerForTests("manim", "ffmpeg", "latex",
		foundLookPath("/usr/bin/latex"), failRun, os.MkdirTemp)

	cap := c.CheckLatex(context.Background())
	if cap.Available {
		t.Error("failed trial compile reported available")
	}
	if cap.Hint == "" {
		t.Error("unavailable LaTeX should carry an install hint")
	}
	if cap.Path == "" {
		t.Error("path should still be reported when the binary exists but fails")
	}
}

func TestCheckLatexMissingBinary(t *testing.T) {
	c := NewCheckerForTests("manim", "ffmpeg", "latex", missingLookPath, nil, os.MkdirTemp)

	cap := c.CheckLatex(context.Background())
	if cap.Available {
		t.Error("missing binary reported available")
	}
	if c.LatexAvailable(context.Background()) {
		t.Error("LatexAvailable disagrees with CheckLatex")
	}
}
