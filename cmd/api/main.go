package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avatarlabs/manim-worker/internal/api"
	"github.com/avatarlabs/manim-worker/internal/config"
	"github.com/avatarlabs/manim-worker/internal/diagnostics"
	"github.com/avatarlabs/manim-worker/internal/progress"
	"github.com/avatarlabs/manim-worker/internal/services"
	"github.com/avatarlabs/manim-worker/internal/storage"
	"github.com/avatarlabs/manim-worker/internal/worker"
	"github.com/avatarlabs/manim-worker/internal/workspace"
)

func main() {
	log.Println("Starting manim render worker...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Probe external tools once at startup; LaTeX is re-probed per request
	checker := diagnostics.NewChecker(cfg.ManimBinary, cfg.FFmpegBinary, cfg.LatexBinary)

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	engineCap := checker.CheckManim()
	avCap := checker.CheckFFmpeg(startupCtx)
	latexCap := checker.CheckLatex(startupCtx)
	cancelStartup()

	logCapability(engineCap)
	logCapability(avCap)
	logCapability(latexCap)
	if !avCap.Available {
		log.Println("WARNING: ffmpeg not usable — audio muxing and concatenation will fail")
	}

	// Progress tracker: Redis when configured, in-process map otherwise
	var tracker progress.Tracker
	if cfg.RedisURL != "" {
		redisTracker, err := progress.NewRedis(cfg.RedisURL, cfg.ProgressTTL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisTracker.Close()
		tracker = redisTracker
		log.Println("Progress tracking backed by Redis")
	} else {
		memTracker := progress.NewMemory(cfg.ProgressTTL)
		defer memTracker.Close()
		tracker = memTracker
	}

	// Output directory and workspaces
	stor, err := storage.New(cfg.OutputDir, cfg.PublicBaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize output storage: %v", err)
	}
	log.Printf("Output directory: %s", cfg.OutputDir)

	workspaces, err := workspace.NewManager("")
	if err != nil {
		log.Fatalf("Failed to initialize workspace manager: %v", err)
	}
	archiver := workspace.NewArchiver(cfg.DebugKeepWorkspaces, cfg.DebugArchiveDir)
	if cfg.DebugKeepWorkspaces {
		log.Printf("Debug mode: workspaces retained, sources/logs archived to %s", cfg.DebugArchiveDir)
	}

	// Services and pipeline worker
	transformer := services.NewSourceTransformer(checker.LatexAvailable)
	manimSvc := services.NewManimService(cfg.ManimBinary, cfg.RenderTimeout)
	ffmpegSvc := services.NewFFmpegService(cfg.FFmpegBinary, cfg.MuxTimeout, cfg.CombineTimeout)

	w := worker.New(transformer, manimSvc, ffmpegSvc, workspaces, archiver, stor, tracker, checker.LatexAvailable, cfg.MaxConcurrentJobs)
	log.Printf("Job concurrency capped at %d", cfg.MaxConcurrentJobs)

	// HTTP surface
	handler := api.NewHandler(w, tracker, checker, engineCap.Available, avCap.Available)
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
		OutputDir:          cfg.OutputDir,
	})

	if cfg.BackendAPIKey != "" {
		log.Println("API key authentication enabled")
	} else {
		log.Println("WARNING: No BACKEND_API_KEY set — API is unprotected (dev mode)")
	}

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	go func() {
		log.Printf("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

func logCapability(cap diagnostics.Capability) {
	if cap.Available {
		log.Printf("Tool %s available at %s", cap.Name, cap.Path)
		return
	}
	log.Printf("Tool %s unavailable: %s", cap.Name, cap.Detail)
}
