package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Storage owns the persistent output directory for finished artifacts and
// builds the public URLs they are served under.
type Storage struct {
	outputDir string
	baseURL   string
}

// New creates the output directory if needed. baseURL is the externally
// reachable address the /videos/ static route is mounted on.
func New(outputDir, baseURL string) (*Storage, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Storage{
		outputDir: outputDir,
		baseURL:   strings.TrimRight(baseURL, "/"),
	}, nil
}

// OutputDir returns the directory finished artifacts live in.
func (s *Storage) OutputDir() string {
	return s.outputDir
}

// VideoFilename is the deterministic artifact name for a generate job.
func (s *Storage) VideoFilename(jobID string) string {
	return fmt.Sprintf("video_%s.mp4", jobID)
}

// CombinedFilename is the deterministic artifact name for a combine job.
func (s *Storage) CombinedFilename(jobID string) string {
	return fmt.Sprintf("combined_video_%s.mp4", jobID)
}

// Path returns the on-disk location of an artifact.
func (s *Storage) Path(filename string) string {
	return filepath.Join(s.outputDir, filename)
}

// PublicURL composes the address an artifact is downloadable from.
func (s *Storage) PublicURL(filename string) string {
	return s.baseURL + "/videos/" + filename
}

// Promote moves a finished temp artifact into the output directory and
// returns its final path. Rename is tried first; a cross-device move falls
// back to copy-and-delete.
func (s *Storage) Promote(tmpPath, filename string) (string, error) {
	finalPath := s.Path(filename)

	if err := os.Rename(tmpPath, finalPath); err == nil {
		return finalPath, nil
	}

	in, err := os.Open(tmpPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", tmpPath, err)
	}
	defer in.Close()

	out, err := os.Create(finalPath)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", finalPath, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return "", fmt.Errorf("failed to copy artifact: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("failed to finish artifact: %w", err)
	}

	_ = os.Remove(tmpPath)
	return finalPath, nil
}
