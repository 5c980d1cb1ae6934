package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/avatarlabs/manim-worker/internal/diagnostics"
	"github.com/avatarlabs/manim-worker/internal/models"
	"github.com/avatarlabs/manim-worker/internal/progress"
	"github.com/avatarlabs/manim-worker/internal/services"
	"github.com/avatarlabs/manim-worker/internal/storage"
	"github.com/avatarlabs/manim-worker/internal/worker"
	"github.com/avatarlabs/manim-worker/internal/workspace"
)

func foundLookPath(string) (string, error) { return "/usr/bin/tool", nil }

func missingLookPath(string) (string, error) {
	return "", errors.New("executable file not found in $PATH")
}

func okProbe(ctx context.Context, dir, name string, args ...string) error { return nil }

// newTestServer wires a real worker over scripted subprocess runners so the
// handlers are exercised end to end without external tools.
func newTestServer(t *testing.T, apiKey string, manimRun, ffmpegRun services.RunFunc) (http.Handler, progress.Tracker) {
	t.Helper()

	if manimRun == nil {
		manimRun = func(context.Context, time.Duration, string, string, ...string) services.ExecResult {
			t.Error("unexpected render invocation")
			return services.ExecResult{}
		}
	}
	if ffmpegRun == nil {
		ffmpegRun = func(context.Context, time.Duration, string, string, ...string) services.ExecResult {
			t.Error("unexpected ffmpeg invocation")
			return services.ExecResult{}
		}
	}

	stor, err := storage.New(t.TempDir(), "http://localhost:3001")
	if err != nil {
		t.Fatal(err)
	}
	workspaces, err := workspace.NewManager(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	checker := diagnostics.NewCheckerForTests("manim", "ffmpeg", "latex",
		foundLookPath, okProbe, os.MkdirTemp)
	probe := func(context.Context) bool { return true }
	tracker := progress.NewMemory(0)

	w := worker.New(
		services.NewSourceTransformer(probe),
		services.NewManimServiceForTests("manim", time.Minute, manimRun),
		services.NewFFmpegServiceForTests("ffmpeg", time.Minute, time.Minute, ffmpegRun),
		workspaces,
		workspace.NewArchiver(false, t.TempDir()),
		stor,
		tracker,
		probe,
		2,
	)

	h := NewHandler(w, tracker, checker, true, true)
	router := NewRouter(h, RouterConfig{
		BackendAPIKey: apiKey,
		OutputDir:     stor.OutputDir(),
	})
	return router, tracker
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dst); err != nil {
		t.Fatalf("bad response body %q: %v", rec.Body.String(), err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := newTestServer(t, "", nil, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var resp models.HealthResponse
	decodeBody(t, rec, &resp)
	if resp.Status != "healthy" || !resp.EngineAvailable || !resp.AVToolAvailable {
		t.Errorf("unexpected health payload: %+v", resp)
	}
}

func TestProgressUnknownJob(t *testing.T) {
	router, _ := newTestServer(t, "", nil, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/progress/no-such-job", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var resp models.ProgressResponse
	decodeBody(t, rec, &resp)
	if resp.Progress != progress.UnknownStatus {
		t.Errorf("got %q, want %q", resp.Progress, progress.UnknownStatus)
	}
}

func TestProgressKnownJob(t *testing.T) {
	router, tracker := newTestServer(t, "", nil, nil)
	tracker.Set(context.Background(), "job1", models.PhaseRendering)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/progress/job1", nil))

	var resp models.ProgressResponse
	decodeBody(t, rec, &resp)
	if resp.Progress != models.PhaseRendering {
		t.Errorf("got %q", resp.Progress)
	}
}

func TestGenerateVideoRejectsMalformedJSON(t *testing.T) {
	router, _ := newTestServer(t, "", nil, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/generate-video", strings.NewReader("{not json"))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d", rec.Code)
	}
	var resp models.VideoResponse
	decodeBody(t, rec, &resp)
	if resp.Success || resp.Error != "Invalid request body" {
		t.Errorf("unexpected payload: %+v", resp)
	}
}

func TestGenerateVideoRejectsMissingSource(t *testing.T) {
	router, _ := newTestServer(t, "", nil, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/generate-video", strings.NewReader(`{"jobId":"x"}`))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d", rec.Code)
	}
	var resp models.VideoResponse
	decodeBody(t, rec, &resp)
	if resp.Success || !strings.HasPrefix(resp.Error, "Validation failed") {
		t.Errorf("unexpected payload: %+v", resp)
	}
}

func TestCombineVideosRejectsEmptyList(t *testing.T) {
	router, _ := newTestServer(t, "", nil, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/combine-videos", strings.NewReader(`{"videoPaths":[]}`))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d", rec.Code)
	}
	var resp models.VideoResponse
	decodeBody(t, rec, &resp)
	if resp.Success || !strings.HasPrefix(resp.Error, "Validation failed") {
		t.Errorf("unexpected payload: %+v", resp)
	}
}

func TestCombineVideosPipelineFailureIs200(t *testing.T) {
	router, _ := newTestServer(t, "", nil, nil)

	body, _ := json.Marshal(models.CombineVideosRequest{
		VideoPaths: []string{filepath.Join(t.TempDir(), "missing.mp4")},
		JobID:      "job2",
	})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/combine-videos", bytes.NewReader(body))
	router.ServeHTTP(rec, req)

	// Pipeline failures are in-band; only malformed requests are 4xx.
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var resp models.VideoResponse
	decodeBody(t, rec, &resp)
	if resp.Success || !strings.Contains(resp.Error, "video file not found") {
		t.Errorf("unexpected payload: %+v", resp)
	}
}

func TestGenerateVideoEndToEnd(t *testing.T) {
	manimRun := func(_ context.Context, _ time.Duration, dir, _ string, _ ...string) services.ExecResult {
		out := filepath.Join(dir, "media", "Intro_job3.mp4")
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(out, []byte("rendered"), 0o644); err != nil {
			t.Fatal(err)
		}
		return services.ExecResult{}
	}
	router, tracker := newTestServer(t, "", manimRun, nil)

	body, _ := json.Marshal(models.GenerateVideoRequest{
		SourceCode: "class Intro(Scene):\n    def construct(self):\n        pass",
		JobID:      "job3",
	})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/generate-video", bytes.NewReader(body))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp models.VideoResponse
	decodeBody(t, rec, &resp)
	if !resp.Success {
		t.Fatalf("generate failed: %s", resp.Error)
	}
	if resp.VideoURL != "http://localhost:3001/videos/video_job3.mp4" {
		t.Errorf("wrong URL: %s", resp.VideoURL)
	}
	if got := tracker.Get(context.Background(), "job3"); got != models.PhaseCompleted {
		t.Errorf("progress %q", got)
	}
}

func TestCheckLatexEndpoint(t *testing.T) {
	router, _ := newTestServer(t, "", nil, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/check-latex", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var resp models.LatexCheckResponse
	decodeBody(t, rec, &resp)
	if !resp.Available || !resp.FallbackEnabled {
		t.Errorf("unexpected payload: %+v", resp)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	router, _ := newTestServer(t, "secret", nil, nil)

	get := func(target string, header func(*http.Request)) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, target, nil)
		if header != nil {
			header(req)
		}
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := get("/progress/job1", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing key: status %d", rec.Code)
	}
	var denied models.VideoResponse
	decodeBody(t, rec, &denied)
	if denied.Success || !strings.Contains(denied.Error, "API key") {
		t.Errorf("rejection must use the in-band error shape: %+v", denied)
	}

	rec = get("/progress/job1", func(r *http.Request) {
		r.Header.Set("X-API-Key", "wrong")
	})
	if rec.Code != http.StatusForbidden {
		t.Errorf("wrong key: status %d", rec.Code)
	}
	decodeBody(t, rec, &denied)
	if denied.Success || denied.Error != "Invalid API key" {
		t.Errorf("rejection must use the in-band error shape: %+v", denied)
	}
	if rec := get("/progress/job1", func(r *http.Request) {
		r.Header.Set("X-API-Key", "secret")
	}); rec.Code != http.StatusOK {
		t.Errorf("valid key: status %d", rec.Code)
	}
	if rec := get("/progress/job1", func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer secret")
	}); rec.Code != http.StatusOK {
		t.Errorf("bearer key: status %d", rec.Code)
	}

	// Health stays public even with auth configured.
	if rec := get("/health", nil); rec.Code != http.StatusOK {
		t.Errorf("health: status %d", rec.Code)
	}
}

func TestVideosStaticServing(t *testing.T) {
	stor, err := storage.New(t.TempDir(), "http://localhost:3001")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(stor.Path("video_job9.mp4"), []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}

	checker := diagnostics.NewCheckerForTests("manim", "ffmpeg", "latex",
		missingLookPath, nil, os.MkdirTemp)
	h := NewHandler(nil, progress.NewMemory(0), checker, false, false)
	router := NewRouter(h, RouterConfig{OutputDir: stor.OutputDir()})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/videos/video_job9.mp4", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if rec.Body.String() != "payload" {
		t.Errorf("body %q", rec.Body.String())
	}
}
