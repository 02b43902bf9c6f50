package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/streamgank/workflow/internal/cache"
	"github.com/streamgank/workflow/internal/catalog"
	"github.com/streamgank/workflow/internal/cloudinary"
	"github.com/streamgank/workflow/internal/config"
	"github.com/streamgank/workflow/internal/creatomate"
	"github.com/streamgank/workflow/internal/healthserver"
	"github.com/streamgank/workflow/internal/heygen"
	"github.com/streamgank/workflow/internal/llmscript"
	"github.com/streamgank/workflow/internal/models"
	"github.com/streamgank/workflow/internal/orchestrator"
	"github.com/streamgank/workflow/internal/progress"
	"github.com/streamgank/workflow/internal/vizard"
)

func main() {
	log.Println("Starting StreamGank workflow...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to catalog database
	database, err := catalog.New(cfg.SupabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to catalog: %v", err)
	}
	defer database.Close()
	log.Println("Connected to catalog database")

	// Construct external clients
	llmClient := llmscript.NewClient(cfg.OpenAIKey)
	heygenClient := heygen.NewClient(cfg.HeyGenAPIKey)
	vizardClient := vizard.NewClient(cfg.VizardAPIKey)
	cloudinaryClient := cloudinary.NewClient(cfg.CloudinaryCloud, cfg.CloudinaryAPIKey, cfg.CloudinarySecret)
	creatomateClient := creatomate.NewClient(cfg.CreatomateAPIKey)

	emitter := progress.NewEmitter(cfg.WebhookBaseURL, cfg.JobID)
	jobCache := cache.New("cache", cfg.AppEnv)

	orch := orchestrator.New(
		cfg,
		catalog.NewExtractor(database),
		func(outputDir string) orchestrator.ScriptGenerator {
			return llmscript.NewGenerator(llmClient, outputDir)
		},
		heygenClient,
		vizardClient,
		cloudinaryClient,
		creatomateClient,
		emitter,
		jobCache,
	)

	// Start the liveness endpoint so the platform can supervise the job.
	health := healthserver.New(cfg.JobID)
	server := &http.Server{
		Addr:    ":" + cfg.HealthPort,
		Handler: health.Router(),
	}
	go func() {
		log.Printf("Health server listening on:%s", cfg.HealthPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Health server error: %v", err)
		}
	}()

	// The job is cancellable at step boundaries and poll iterations —
	// SIGINT/SIGTERM propagate through the context into every in-flight
	// sub-task.
	ctx, cancel := context.WithCancel(context.Background())
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Println("Signal received, cancelling job...")
		cancel()
	}()

	// Webhook pre-flight: a misconfigured WEBHOOK_BASE_URL should surface
	// before the job starts, but never stop it.
	if err := emitter.Ping(ctx); err != nil {
		log.Printf("WARNING: progress webhook unreachable: %v", err)
	}

	filter := models.Filter{
		Country:     cfg.FilterCountry,
		Platform:    cfg.FilterPlatform,
		Genre:       cfg.FilterGenre,
		ContentType: cfg.FilterContentType,
		NumMovies:   cfg.FilterNumMovies,
	}

	rec, runErr := orch.Run(ctx, filter)

	// The pipeline hands off at creatomate_ready; track the remote render
	// to terminal status before exiting.
	if runErr == nil && rec.CompositionID != "" {
		orchestrator.MonitorRender(ctx, creatomateClient, emitter, rec.CompositionID)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Health server forced to shutdown: %v", err)
	}

	if runErr != nil {
		log.Fatalf("Job %s failed: %v", rec.JobID, runErr)
	}
	log.Printf("Job %s completed, render id %s", rec.JobID, rec.CompositionID)
}
