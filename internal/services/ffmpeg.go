package services

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

// FFmpegService drives the external AV tool for audio muxing and video
// concatenation.
type FFmpegService struct {
	binary         string
	muxTimeout     time.Duration
	combineTimeout time.Duration
	run            RunFunc
}

func NewFFmpegService(binary string, muxTimeout, combineTimeout time.Duration) *FFmpegService {
	return &FFmpegService{
		binary:         binary,
		muxTimeout:     muxTimeout,
		combineTimeout: combineTimeout,
		run:            runCommand,
	}
}

// NewFFmpegServiceForTests builds a service with an injected runner.
func NewFFmpegServiceForTests(binary string, muxTimeout, combineTimeout time.Duration, run RunFunc) *FFmpegService {
	return &FFmpegService{binary: binary, muxTimeout: muxTimeout, combineTimeout: combineTimeout, run: run}
}

// CombineTimeout returns the per-attempt concatenation budget.
func (s *FFmpegService) CombineTimeout() time.Duration {
	return s.combineTimeout
}

// MuxAudio merges an audio track into videoPath and writes the result to
// destPath. Audio embedding is strictly best-effort: a missing audio file, a
// tool failure, or a timeout all degrade to a verbatim video-only copy. The
// returned error is non-nil only when even the fallback copy cannot be
// written, since at that point the job has no artifact to report.
func (s *FFmpegService) MuxAudio(ctx context.Context, videoPath, audioPath, destPath string) error {
	if audioPath == "" {
		return copyFile(videoPath, destPath)
	}

	if _, err := os.Stat(audioPath); err != nil {
		log.Printf("[FFmpeg] Audio file not found at %s, saving video without audio", audioPath)
		return copyFile(videoPath, destPath)
	}

	args := []string{
		"-i", videoPath,
		"-i", audioPath,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
		"-shortest",
		"-y",
		destPath,
	}

	res := s.run(ctx, s.muxTimeout, "", s.binary, args...)
	if res.OK() {
		return nil
	}

	switch {
	case res.TimedOut:
		log.Printf("[FFmpeg] Audio mux timed out after %s, saving video without audio", s.muxTimeout)
	case res.StartErr != nil:
		log.Printf("[FFmpeg] Audio mux could not start (%v), saving video without audio", res.StartErr)
	default:
		log.Printf("[FFmpeg] Audio mux failed (exit %d), saving video without audio: %s", res.ExitCode, res.Stderr)
	}

	return copyFile(videoPath, destPath)
}

// VerifyInputs checks that every combine input exists, failing fast on the
// first missing path before any external process is spawned.
func VerifyInputs(paths []string) error {
	for i, path := range paths {
		if _, err := os.Stat(path); err != nil {
			return &InputError{Index: i, Path: path}
		}
	}
	return nil
}

// WriteConcatManifest writes the ffmpeg concat list for the ordered inputs,
// using absolute paths, and returns the manifest path.
func WriteConcatManifest(dir string, paths []string) (string, error) {
	manifestPath := filepath.Join(dir, "concat_list.txt")

	f, err := os.Create(manifestPath)
	if err != nil {
		return "", fmt.Errorf("failed to create concat list: %w", err)
	}
	defer f.Close()

	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to resolve %s: %w", path, err)
		}
		if _, err := fmt.Fprintf(f, "file '%s'\n", abs); err != nil {
			return "", fmt.Errorf("failed to write concat list: %w", err)
		}
	}

	return manifestPath, nil
}

// ConcatCopy concatenates the manifest inputs without re-encoding. Fast, but
// requires compatible codecs and parameters across all inputs.
func (s *FFmpegService) ConcatCopy(ctx context.Context, manifestPath, outPath string) ExecResult {
	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", manifestPath,
		"-c", "copy",
		"-y",
		outPath,
	}
	return s.run(ctx, s.combineTimeout, filepath.Dir(manifestPath), s.binary, args...)
}

// ConcatReencode concatenates the manifest inputs with a full re-encode,
// used when stream copy fails on heterogeneous inputs.
func (s *FFmpegService) ConcatReencode(ctx context.Context, manifestPath, outPath string) ExecResult {
	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", manifestPath,
		"-c:v", "libx264",
		"-c:a", "aac",
		"-preset", "fast",
		"-crf", "23",
		"-y",
		outPath,
	}
	return s.run(ctx, s.combineTimeout, filepath.Dir(manifestPath), s.binary, args...)
}

// copyFile copies src to dst verbatim.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}

	return out.Close()
}
