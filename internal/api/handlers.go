package api

import (
	"encoding/json"
	"net/http"

	"github.com/avatarlabs/manim-worker/internal/diagnostics"
	"github.com/avatarlabs/manim-worker/internal/models"
	"github.com/avatarlabs/manim-worker/internal/progress"
	"github.com/avatarlabs/manim-worker/internal/worker"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

type Handler struct {
	worker   *worker.Worker
	progress progress.Tracker
	checker  *diagnostics.Checker
	validate *validator.Validate

	// Startup probe results reported by /health.
	engineAvailable bool
	avToolAvailable bool
}

func NewHandler(w *worker.Worker, tracker progress.Tracker, checker *diagnostics.Checker, engineAvailable, avToolAvailable bool) *Handler {
	return &Handler{
		worker:          w,
		progress:        tracker,
		checker:         checker,
		validate:        validator.New(),
		engineAvailable: engineAvailable,
		avToolAvailable: avToolAvailable,
	}
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, models.HealthResponse{
		Status:          "healthy",
		EngineAvailable: h.engineAvailable,
		AVToolAvailable: h.avToolAvailable,
	})
}

// Progress handles GET /progress/{jobId}
func (h *Handler) Progress(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	respondJSON(w, http.StatusOK, models.ProgressResponse{
		Progress: h.progress.Get(r.Context(), jobID),
	})
}

// CheckLatex handles GET /check-latex. The probe runs live so the answer
// tracks distribution installs/removals without a restart.
func (h *Handler) CheckLatex(w http.ResponseWriter, r *http.Request) {
	cap := h.checker.CheckLatex(r.Context())
	respondJSON(w, http.StatusOK, models.LatexCheckResponse{
		Available:         cap.Available,
		Path:              cap.Path,
		FallbackEnabled:   true,
		RecommendedAction: cap.Hint,
	})
}

// GenerateVideo handles POST /generate-video. Pipeline failures come back
// with HTTP 200 and success:false; only a malformed request is a 4xx.
func (h *Handler) GenerateVideo(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, models.VideoResponse{Success: false, Error: "Invalid request body"})
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, models.VideoResponse{Success: false, Error: "Validation failed: " + err.Error()})
		return
	}

	respondJSON(w, http.StatusOK, h.worker.Generate(r.Context(), req))
}

// CombineVideos handles POST /combine-videos
func (h *Handler) CombineVideos(w http.ResponseWriter, r *http.Request) {
	var req models.CombineVideosRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, models.VideoResponse{Success: false, Error: "Invalid request body"})
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, models.VideoResponse{Success: false, Error: "Validation failed: " + err.Error()})
		return
	}

	respondJSON(w, http.StatusOK, h.worker.Combine(r.Context(), req))
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
