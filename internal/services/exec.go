package services

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// ExecResult describes one bounded subprocess invocation. Exactly one of the
// failure conditions is set: TimedOut when the wall-clock limit fired,
// StartErr when the process could not be started at all, or a non-zero
// ExitCode when the tool ran and failed.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
	StartErr error
}

// OK reports whether the invocation ran to completion with exit code zero.
func (r ExecResult) OK() bool {
	return r.StartErr == nil && !r.TimedOut && r.ExitCode == 0
}

// RunFunc executes an external command with a wall-clock timeout and captures
// both output streams. Services hold one of these so tests can substitute a
// double without spawning anything.
type RunFunc func(ctx context.Context, timeout time.Duration, dir, name string, args ...string) ExecResult

// runCommand is the production RunFunc.
func runCommand(ctx context.Context, timeout time.Duration, dir, name string, args ...string) ExecResult {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	res := ExecResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if ctx.Err() == context.DeadlineExceeded {
		res.TimedOut = true
		return res
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.StartErr = err
		}
	}

	return res
}
