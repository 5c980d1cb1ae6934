package models

// Job phase labels reported through the progress tracker. Each job moves
// forward through its sequence; a failure at any stage replaces the label
// with a terminal "failed: <reason>" string.
const (
	PhaseReceived       = "received"
	PhaseNormalizing    = "normalizing"
	PhaseRendering      = "rendering"
	PhaseLocatingOutput = "locating-output"
	PhaseMuxingAudio    = "muxing-audio"
	PhaseCompleted      = "completed"

	PhaseVerifyingInputs   = "verifying-inputs"
	PhaseBuildingManifest  = "building-manifest"
	PhaseCombiningCopy     = "combining (copy attempt)"
	PhaseCombiningReencode = "combining (re-encode attempt)"
)

// GeneratePhaseOrder is the forward sequence for a generate-video job.
var GeneratePhaseOrder = []string{
	PhaseReceived,
	PhaseNormalizing,
	PhaseRendering,
	PhaseLocatingOutput,
	PhaseMuxingAudio,
	PhaseCompleted,
}

// CombinePhaseOrder is the forward sequence for a combine-videos job.
var CombinePhaseOrder = []string{
	PhaseReceived,
	PhaseVerifyingInputs,
	PhaseBuildingManifest,
	PhaseCombiningCopy,
	PhaseCombiningReencode,
	PhaseCompleted,
}

// FailedPhase builds the terminal label for a failed job.
func FailedPhase(reason string) string {
	return "failed: " + reason
}

// GenerateVideoRequest is the body of POST /generate-video.
// AudioPath optionally points to a narration/soundtrack file on the worker's
// filesystem; a missing or unresolvable file degrades to video-only output.
type GenerateVideoRequest struct {
	SourceCode string `json:"sourceCode" validate:"required"`
	JobID      string `json:"jobId,omitempty" validate:"omitempty,max=128"`
	AudioPath  string `json:"audioPath,omitempty"`
}

// CombineVideosRequest is the body of POST /combine-videos. Paths are
// concatenated in the given order and treated as read-only inputs.
type CombineVideosRequest struct {
	VideoPaths []string `json:"videoPaths" validate:"required,min=1,dive,required"`
	JobID      string   `json:"jobId,omitempty" validate:"omitempty,max=128"`
}

// VideoResponse is the shared response shape of the generate and combine
// endpoints. Pipeline failures are reported in-band via Success/Error.
type VideoResponse struct {
	Success   bool   `json:"success"`
	VideoPath string `json:"videoPath,omitempty"`
	VideoURL  string `json:"videoUrl,omitempty"`
	Error     string `json:"error,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status          string `json:"status"`
	EngineAvailable bool   `json:"engineAvailable"`
	AVToolAvailable bool   `json:"avToolAvailable"`
}

// ProgressResponse is returned by GET /progress/{jobId}.
type ProgressResponse struct {
	Progress string `json:"progress"`
}

// LatexCheckResponse is returned by GET /check-latex.
type LatexCheckResponse struct {
	Available         bool   `json:"available"`
	Path              string `json:"path,omitempty"`
	FallbackEnabled   bool   `json:"fallbackEnabled"`
	RecommendedAction string `json:"recommendedAction,omitempty"`
}
