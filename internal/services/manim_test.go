package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type capturedRun struct {
	dir  string
	name string
	args []string
}

func captureRun(calls *[]capturedRun, result ExecResult) RunFunc {
	return func(_ context.Context, _ time.Duration, dir, name string, args ...string) ExecResult {
		*calls = append(*calls, capturedRun{dir: dir, name: name, args: args})
		return result
	}
}

func TestRenderWritesScriptAndBuildsCommand(t *testing.T) {
	ws := t.TempDir()
	var calls []capturedRun
	svc := NewManimServiceForTests("manim", time.Minute, captureRun(&calls, ExecResult{}))

	res, err := svc.Render(context.Background(), ws, "print('hello')", "Intro", "job42")
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if res.ExitCode != 0 || res.TimedOut {
		t.Fatalf("unexpected result: %+v", res)
	}

	script, err := os.ReadFile(filepath.Join(ws, ScriptName))
	if err != nil {
		t.Fatalf("script not written: %v", err)
	}
	if string(script) != "print('hello')" {
		t.Errorf("script content mismatch: %q", script)
	}

	if len(calls) != 1 {
		t.Fatalf("expected one invocation, got %d", len(calls))
	}
	call := calls[0]
	if call.name != "manim" {
		t.Errorf("wrong binary: %s", call.name)
	}
	if call.dir != ws {
		t.Errorf("expected workspace cwd, got %s", call.dir)
	}

	want := []string{
		filepath.Join(ws, ScriptName),
		"Intro",
		"-qh",
		"--output_file", "Intro_job42",
		"--media_dir", filepath.Join(ws, "media"),
	}
	if len(call.args) != len(want) {
		t.Fatalf("args mismatch:\ngot  %v\nwant %v", call.args, want)
	}
	for i := range want {
		if call.args[i] != want[i] {
			t.Errorf("arg %d: got %q, want %q", i, call.args[i], want[i])
		}
	}
}

func TestRenderReportsStartError(t *testing.T) {
	var calls []capturedRun
	svc := NewManimServiceForTests("manim", time.Minute,
		captureRun(&calls, ExecResult{StartErr: errors.New("executable not found")}))

	_, err := svc.Render(context.Background(), t.TempDir(), "pass", "Intro", "job1")
	if err == nil {
		t.Fatal("expected error when the engine cannot start")
	}
}

func TestClassifyRenderFailure(t *testing.T) {
	timeout := 300 * time.Second

	t.Run("timeout", func(t *testing.T) {
		err := ClassifyRenderFailure(RenderResult{TimedOut: true}, true, timeout)
		var terr *TimeoutError
		if !errors.As(err, &terr) {
			t.Fatalf("expected TimeoutError, got %T: %v", err, err)
		}
		if terr.Limit != timeout {
			t.Errorf("expected limit %s, got %s", timeout, terr.Limit)
		}
	})

	t.Run("latex marker with toolchain absent", func(t *testing.T) {
		res := RenderResult{ExitCode: 1, Stderr: "LaTeX Error: File `standalone.cls' not found"}
		err := ClassifyRenderFailure(res, false, timeout)

		var terr *TypesettingError
		if !errors.As(err, &terr) {
			t.Fatalf("expected TypesettingError, got %T: %v", err, err)
		}
		if terr.Hint == "" {
			t.Error("expected remediation hint when LaTeX is confirmed absent")
		}

		// The typesetting class still matches the generic transcode class.
		var gerr *TranscodeError
		if !errors.As(err, &gerr) {
			t.Error("TypesettingError should unwrap to TranscodeError")
		}
	})

	t.Run("latex marker with toolchain present", func(t *testing.T) {
		res := RenderResult{ExitCode: 1, Stdout: "Undefined control sequence"}
		err := ClassifyRenderFailure(res, true, timeout)

		var terr *TypesettingError
		if !errors.As(err, &terr) {
			t.Fatalf("expected TypesettingError, got %T: %v", err, err)
		}
		if terr.Hint != "" {
			t.Errorf("no hint expected when LaTeX is present, got %q", terr.Hint)
		}
	})

	t.Run("generic failure", func(t *testing.T) {
		res := RenderResult{ExitCode: 1, Stdout: "out", Stderr: "NameError: name 'Circl' is not defined"}
		err := ClassifyRenderFailure(res, true, timeout)

		var terr *TypesettingError
		if errors.As(err, &terr) {
			t.Fatal("generic failure misclassified as typesetting")
		}
		var gerr *TranscodeError
		if !errors.As(err, &gerr) {
			t.Fatalf("expected TranscodeError, got %T: %v", err, err)
		}
		if gerr.Stdout != "out" || gerr.Stderr == "" {
			t.Error("captured streams must be carried verbatim")
		}
	})
}
