package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string
	PublicBaseURL      string // Base address used when composing artifact URLs
	BackendAPIKey      string // API key for authenticating requests (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)

	// Output
	OutputDir string // Persistent directory for finished artifacts, served under /videos/

	// Redis (optional — when set, job progress is stored in Redis instead of memory)
	RedisURL string

	// External tools
	ManimBinary  string
	FFmpegBinary string
	LatexBinary  string

	// Timeouts
	RenderTimeout  time.Duration
	MuxTimeout     time.Duration
	CombineTimeout time.Duration

	// Debug
	DebugKeepWorkspaces bool   // Retain per-job workspaces and archive sources/logs
	DebugArchiveDir     string // Where archived job material is copied

	// Worker
	MaxConcurrentJobs int
	ProgressTTL       time.Duration // How long finished progress entries stick around
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:             getEnv("API_PORT", "8001"),
		PublicBaseURL:       getEnv("PUBLIC_BASE_URL", "http://localhost:3001"),
		BackendAPIKey:       getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins:  getEnv("CORS_ALLOWED_ORIGINS", ""),
		OutputDir:           getEnv("OUTPUT_DIR", "uploads/videos"),
		RedisURL:            getEnv("REDIS_URL", ""),
		ManimBinary:         getEnv("MANIM_BINARY", "manim"),
		FFmpegBinary:        getEnv("FFMPEG_BINARY", "ffmpeg"),
		LatexBinary:         getEnv("LATEX_BINARY", "latex"),
		RenderTimeout:       getEnvDuration("RENDER_TIMEOUT", 300*time.Second),
		MuxTimeout:          getEnvDuration("MUX_TIMEOUT", 60*time.Second),
		CombineTimeout:      getEnvDuration("COMBINE_TIMEOUT", 300*time.Second),
		DebugKeepWorkspaces: getEnvBool("DEBUG_KEEP_WORKSPACES", false),
		DebugArchiveDir:     getEnv("DEBUG_ARCHIVE_DIR", "uploads/debug"),
		MaxConcurrentJobs:   getEnvInt("MAX_CONCURRENT_JOBS", 5),
		ProgressTTL:         getEnvDuration("PROGRESS_TTL", 24*time.Hour),
	}

	if cfg.OutputDir == "" {
		return nil, fmt.Errorf("OUTPUT_DIR must not be empty")
	}

	if cfg.MaxConcurrentJobs < 1 {
		return nil, fmt.Errorf("MAX_CONCURRENT_JOBS must be at least 1, got %d", cfg.MaxConcurrentJobs)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return defaultValue
}
