package services

import (
	"fmt"
	"time"
)

// InputError reports a referenced input file that does not exist. Index is
// the position of the offending path in the request.
type InputError struct {
	Index int
	Path  string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("video file not found (input %d): %s", e.Index+1, e.Path)
}

// TranscodeError is a generic external-tool failure carrying both captured
// streams verbatim so callers can surface actionable output.
type TranscodeError struct {
	Op     string
	Stdout string
	Stderr string
}

func (e *TranscodeError) Error() string {
	return fmt.Sprintf("%s failed:\nSTDOUT: %s\nSTDERR: %s", e.Op, e.Stdout, e.Stderr)
}

// TypesettingError is a render failure attributed to the LaTeX toolchain.
// Hint carries a remediation suggestion when the availability probe confirmed
// the toolchain is absent.
type TypesettingError struct {
	TranscodeError
	Hint string
}

func (e *TypesettingError) Error() string {
	msg := e.TranscodeError.Error()
	if e.Hint != "" {
		msg += "\nHint: " + e.Hint
	}
	return msg
}

// Unwrap lets callers match the generic transcode class with errors.As.
func (e *TypesettingError) Unwrap() error {
	return &e.TranscodeError
}

// TimeoutError reports a subprocess that exceeded its wall-clock budget.
type TimeoutError struct {
	Phase string
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Phase, e.Limit)
}

// ArtifactNotFoundError reports that a render claimed success but no video
// file could be discovered in the workspace.
type ArtifactNotFoundError struct {
	Dir   string
	Entry string
}

func (e *ArtifactNotFoundError) Error() string {
	return fmt.Sprintf("no video file was generated for scene %q under %s", e.Entry, e.Dir)
}
