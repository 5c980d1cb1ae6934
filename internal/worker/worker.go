package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/avatarlabs/manim-worker/internal/models"
	"github.com/avatarlabs/manim-worker/internal/progress"
	"github.com/avatarlabs/manim-worker/internal/services"
	"github.com/avatarlabs/manim-worker/internal/storage"
	"github.com/avatarlabs/manim-worker/internal/workspace"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// Worker runs the generate and combine pipelines. Concurrent jobs are
// independent; the only shared state is the progress tracker and the output
// directory, and artifact names are namespaced by job id.
type Worker struct {
	transformer *services.SourceTransformer
	manim       *services.ManimService
	ffmpeg      *services.FFmpegService
	workspaces  *workspace.Manager
	archiver    *workspace.Archiver
	storage     *storage.Storage
	progress    progress.Tracker

	// latexAvailable is re-probed at classification time so the remediation
	// hint reflects the live environment, not a stale startup check.
	latexAvailable func(context.Context) bool

	// sem bounds simultaneous jobs; every pipeline blocks on an external
	// subprocess for most of its life, so unbounded spawn would exhaust the
	// host under load.
	sem *semaphore.Weighted
}

func New(
	transformer *services.SourceTransformer,
	manimSvc *services.ManimService,
	ffmpegSvc *services.FFmpegService,
	workspaces *workspace.Manager,
	archiver *workspace.Archiver,
	stor *storage.Storage,
	tracker progress.Tracker,
	latexProbe func(context.Context) bool,
	maxConcurrentJobs int,
) *Worker {
	return &Worker{
		transformer:    transformer,
		manim:          manimSvc,
		ffmpeg:         ffmpegSvc,
		workspaces:     workspaces,
		archiver:       archiver,
		storage:        stor,
		progress:       tracker,
		latexAvailable: latexProbe,
		sem:            semaphore.NewWeighted(int64(maxConcurrentJobs)),
	}
}

// Generate runs the full render pipeline for one source snippet. Every
// failure is reported in-band; nothing escapes as a panic or unhandled error.
func (w *Worker) Generate(ctx context.Context, req models.GenerateVideoRequest) models.VideoResponse {
	jobID := req.JobID
	if jobID == "" {
		jobID = uuid.New().String()
	}

	log.Printf("[Worker] Generate job %s: %d bytes of source", jobID, len(req.SourceCode))

	if err := w.sem.Acquire(ctx, 1); err != nil {
		return w.fail(ctx, jobID, "request cancelled while waiting for a job slot")
	}
	defer w.sem.Release(1)

	// An admitted job runs to completion even if the caller disconnects;
	// only the wall-clock budgets abort an in-flight subprocess.
	ctx = context.WithoutCancel(ctx)

	w.progress.Set(ctx, jobID, models.PhaseReceived)

	ws, err := w.workspaces.Acquire("manim", jobID)
	if err != nil {
		return w.fail(ctx, jobID, err.Error())
	}
	retain := w.archiver.Enabled()
	defer func() {
		if retain {
			w.archiver.Archive(ws)
		}
		w.workspaces.Release(ws, retain)
	}()

	if retain {
		// Keep the untransformed snippet next to the final script for diffing.
		rawPath := filepath.Join(ws.Path, "scene_raw.py")
		if err := os.WriteFile(rawPath, []byte(req.SourceCode), 0o644); err != nil {
			log.Printf("[Worker] Failed to keep raw source for job %s: %v", jobID, err)
		}
	}

	w.progress.Set(ctx, jobID, models.PhaseNormalizing)
	tr := w.transformer.Normalize(ctx, req.SourceCode)
	for _, issue := range tr.Issues {
		log.Printf("[Worker] Job %s: transform issue %s x%d", jobID, issue.Kind, issue.Count)
	}

	w.progress.Set(ctx, jobID, models.PhaseRendering)
	res, err := w.manim.Render(ctx, ws.Path, tr.FinalSource, tr.EntryIdentifier, jobID)
	if err != nil {
		return w.fail(ctx, jobID, err.Error())
	}
	if res.TimedOut || res.ExitCode != 0 {
		cerr := services.ClassifyRenderFailure(res, w.latexAvailable(ctx), w.manim.Timeout())
		return w.fail(ctx, jobID, cerr.Error())
	}

	w.progress.Set(ctx, jobID, models.PhaseLocatingOutput)
	artifact, err := services.LocateArtifact(ws.Path, tr.EntryIdentifier)
	if err != nil {
		return w.fail(ctx, jobID, err.Error())
	}

	filename := w.storage.VideoFilename(jobID)
	if req.AudioPath != "" {
		w.progress.Set(ctx, jobID, models.PhaseMuxingAudio)
	}
	if err := w.ffmpeg.MuxAudio(ctx, artifact, req.AudioPath, w.storage.Path(filename)); err != nil {
		return w.fail(ctx, jobID, err.Error())
	}

	w.progress.Set(ctx, jobID, models.PhaseCompleted)
	log.Printf("[Worker] Job %s completed: %s", jobID, filename)

	return models.VideoResponse{
		Success:   true,
		VideoPath: w.storage.Path(filename),
		VideoURL:  w.storage.PublicURL(filename),
	}
}

// Combine concatenates an ordered list of existing videos. Stream copy is
// attempted first; a non-zero exit triggers exactly one re-encode retry.
func (w *Worker) Combine(ctx context.Context, req models.CombineVideosRequest) models.VideoResponse {
	jobID := req.JobID
	if jobID == "" {
		jobID = uuid.New().String()
	}

	log.Printf("[Worker] Combine job %s: %d video(s)", jobID, len(req.VideoPaths))

	if err := w.sem.Acquire(ctx, 1); err != nil {
		return w.fail(ctx, jobID, "request cancelled while waiting for a job slot")
	}
	defer w.sem.Release(1)

	// Same detachment as Generate: a client disconnect must not kill the
	// concat subprocess mid-flight.
	ctx = context.WithoutCancel(ctx)

	w.progress.Set(ctx, jobID, models.PhaseReceived)

	ws, err := w.workspaces.Acquire("combine_videos", jobID)
	if err != nil {
		return w.fail(ctx, jobID, err.Error())
	}
	retain := w.archiver.Enabled()
	defer func() {
		if retain {
			w.archiver.Archive(ws)
		}
		w.workspaces.Release(ws, retain)
	}()

	w.progress.Set(ctx, jobID, models.PhaseVerifyingInputs)
	if err := services.VerifyInputs(req.VideoPaths); err != nil {
		return w.fail(ctx, jobID, err.Error())
	}

	w.progress.Set(ctx, jobID, models.PhaseBuildingManifest)
	manifest, err := services.WriteConcatManifest(ws.Path, req.VideoPaths)
	if err != nil {
		return w.fail(ctx, jobID, err.Error())
	}

	// Attempts write into the workspace; only a verified success is promoted
	// into the output directory, so a failed attempt can never leak a partial
	// artifact.
	tmpOut := filepath.Join(ws.Path, "combined_output.mp4")

	w.progress.Set(ctx, jobID, models.PhaseCombiningCopy)
	strategy := "stream copy"
	res := w.ffmpeg.ConcatCopy(ctx, manifest, tmpOut)

	if cerr := combineAttemptError(res, w.ffmpeg.CombineTimeout()); cerr != nil {
		return w.fail(ctx, jobID, cerr.Error())
	}

	if res.ExitCode != 0 {
		log.Printf("[Worker] Job %s: stream copy failed (exit %d), retrying with re-encode", jobID, res.ExitCode)
		_ = os.Remove(tmpOut)

		w.progress.Set(ctx, jobID, models.PhaseCombiningReencode)
		strategy = "re-encode"
		res = w.ffmpeg.ConcatReencode(ctx, manifest, tmpOut)

		if cerr := combineAttemptError(res, w.ffmpeg.CombineTimeout()); cerr != nil {
			return w.fail(ctx, jobID, cerr.Error())
		}
		if res.ExitCode != 0 {
			cerr := &services.TranscodeError{Op: "video combination", Stdout: res.Stdout, Stderr: res.Stderr}
			return w.fail(ctx, jobID, cerr.Error())
		}
	}

	// The tool can report success without producing a file.
	if _, err := os.Stat(tmpOut); err != nil {
		return w.fail(ctx, jobID, "combined video file was not created")
	}

	filename := w.storage.CombinedFilename(jobID)
	finalPath, err := w.storage.Promote(tmpOut, filename)
	if err != nil {
		return w.fail(ctx, jobID, err.Error())
	}

	w.progress.Set(ctx, jobID, models.PhaseCompleted)
	log.Printf("[Worker] Job %s completed via %s: %s", jobID, strategy, filename)

	return models.VideoResponse{
		Success:   true,
		VideoPath: finalPath,
		VideoURL:  w.storage.PublicURL(filename),
	}
}

// combineAttemptError maps the non-retryable failure modes of one concat
// attempt. A plain non-zero exit returns nil so the caller can retry.
func combineAttemptError(res services.ExecResult, limit time.Duration) error {
	if res.TimedOut {
		return &services.TimeoutError{Phase: "video combination", Limit: limit}
	}
	if res.StartErr != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", res.StartErr)
	}
	return nil
}

func (w *Worker) fail(ctx context.Context, jobID, reason string) models.VideoResponse {
	log.Printf("[Worker] Job %s failed: %s", jobID, reason)
	w.progress.Set(ctx, jobID, models.FailedPhase(reason))
	return models.VideoResponse{Success: false, Error: reason}
}
