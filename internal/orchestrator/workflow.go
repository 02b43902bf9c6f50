// Package orchestrator runs the seven-step workflow state machine:
// catalog extraction, script generation, asset preparation, avatar
// rendering, URL resolution, composition build, render submission. It owns
// the JobRecord for the job's duration; every step reads the preceding
// fields, writes its own, and returns.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/streamgank/workflow/internal/cache"
	"github.com/streamgank/workflow/internal/catalogmap"
	"github.com/streamgank/workflow/internal/composition"
	"github.com/streamgank/workflow/internal/config"
	"github.com/streamgank/workflow/internal/llmscript"
	"github.com/streamgank/workflow/internal/media"
	"github.com/streamgank/workflow/internal/models"
	"github.com/streamgank/workflow/internal/progress"
	"github.com/streamgank/workflow/internal/screencast"
)

const totalSteps = 7

// The external clients are consumed through interfaces narrowed to what
// the workflow actually calls, so tests can substitute fakes without API
// keys (same pattern as llmscript.Completer).

// MovieExtractor is step 1's catalog store view.
type MovieExtractor interface {
	Extract(ctx context.Context, filter models.Filter) ([]models.Movie, error)
}

// ScriptGenerator is step 2's LLM-backed script producer.
type ScriptGenerator interface {
	Generate(ctx context.Context, movies []models.Movie, filter models.Filter) (*models.ScriptBundle, []llmscript.Warning, error)
}

// AvatarService is step 4's submit/poll surface over HeyGen.
type AvatarService interface {
	Submit(ctx context.Context, templateID, title, scriptContent string) (string, error)
	PollUntilComplete(ctx context.Context, externalID string, scriptLengthChars int) (string, error)
}

// ClipService is step 3's submit/poll surface over Vizard.
type ClipService interface {
	Submit(ctx context.Context, trailerURL string) (string, error)
	PollUntilReady(ctx context.Context, projectID string) (string, error)
}

// MediaUploader is the media CDN's upload surface.
type MediaUploader interface {
	UploadImage(ctx context.Context, publicID string, data []byte) (string, error)
	UploadVideo(ctx context.Context, publicID string, data []byte, presetName string) (string, error)
}

// Compositor is step 7's render-submission surface over Creatomate.
type Compositor interface {
	Submit(ctx context.Context, comp models.Composition) (string, error)
}

// Orchestrator wires the clients together and runs one job per Run call.
type Orchestrator struct {
	cfg        *config.Config
	catalog    MovieExtractor
	newScripts func(outputDir string) ScriptGenerator
	avatar     AvatarService
	clips      ClipService
	uploader   MediaUploader
	compositor Compositor
	emitter    *progress.Emitter
	jobCache   *cache.Cache

	// Seams over the pieces that shell out or hit the network directly;
	// production uses the media/screencast package functions, tests
	// substitute fakes.
	buildPoster     func(ctx context.Context, movie models.Movie) ([]byte, error)
	capture         func(ctx context.Context, catalogURL, workDir, outputPath string) error
	checkAssetURL   func(ctx context.Context, rawURL string) error
	checkVideoURL   func(ctx context.Context, rawURL string) error
	download        func(ctx context.Context, rawURL, destPath string) error
	extractFallback func(ctx context.Context, trailerPath, outputPath string) error
}

// New constructs an Orchestrator. newScripts is a factory because each job
// writes its script files under its own workspace directory.
func New(
	cfg *config.Config,
	catalog MovieExtractor,
	newScripts func(outputDir string) ScriptGenerator,
	avatar AvatarService,
	clips ClipService,
	uploader MediaUploader,
	compositor Compositor,
	emitter *progress.Emitter,
	jobCache *cache.Cache,
) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		catalog:    catalog,
		newScripts: newScripts,
		avatar:     avatar,
		clips:      clips,
		uploader:   uploader,
		compositor: compositor,
		emitter:    emitter,
		jobCache:   jobCache,

		buildPoster:     media.BuildEnhancedPoster,
		capture:         screencast.Capture,
		checkAssetURL:   media.CheckURL,
		checkVideoURL:   media.CheckVideoURL,
		download:        media.DownloadTrailer,
		extractFallback: media.ExtractHighlightFallback,
	}
}

// jobRun is the per-job state shared by the step methods: the mutable
// record, the scoped workspace, the per-job log file, and the normalized
// filter tokens computed once up front.
type jobRun struct {
	o      *Orchestrator
	rec    *models.JobRecord
	ws     *jobWorkspace
	logger *progress.JobLogger

	genreToken       string
	platformToken    string
	contentTypeToken string
}

// Run executes one job end to end and returns the terminal JobRecord. The
// returned error is nil exactly when rec.Status == completed.
func (o *Orchestrator) Run(ctx context.Context, filter models.Filter) (*models.JobRecord, error) {
	rec := models.NewJobRecord(filter)
	if o.cfg.JobID != "" {
		rec.JobID = o.cfg.JobID
	}

	r := &jobRun{o: o, rec: rec}

	// Fail fast before step 1: all four filter fields must resolve through
	// the mapping tables.
	var ok bool
	if r.genreToken, ok = catalogmap.NormalizeGenre(filter.Genre); !ok {
		return r.failBeforeStart(ctx, fmt.Errorf("unknown genre: %s", filter.Genre))
	}
	if r.platformToken, ok = catalogmap.NormalizePlatform(filter.Platform); !ok {
		return r.failBeforeStart(ctx, fmt.Errorf("unknown platform: %s", filter.Platform))
	}
	if r.contentTypeToken, ok = catalogmap.NormalizeContentType(filter.ContentType); !ok {
		return r.failBeforeStart(ctx, fmt.Errorf("unknown content_type: %s", filter.ContentType))
	}
	if filter.NumMovies < 1 {
		return r.failBeforeStart(ctx, fmt.Errorf("num_movies must be >= 1, got %d", filter.NumMovies))
	}

	ws, err := newJobWorkspace(o.cfg.WorkspaceRoot, rec.JobID)
	if err != nil {
		return r.failBeforeStart(ctx, err)
	}
	r.ws = ws
	defer ws.Cleanup()

	logger, err := progress.NewJobLogger(o.cfg.LogsDir, rec.WorkflowID, "streamgank_workflow")
	if err != nil {
		log.Printf("[orchestrator] job log unavailable, continuing without: %v", err)
	}
	r.logger = logger
	defer logger.Close()

	o.emitter.Started(ctx, totalSteps)
	logger.Info("Workflow started", map[string]interface{}{
		"job_id":      rec.JobID,
		"workflow_id": rec.WorkflowID,
		"country":     filter.Country,
		"platform":    r.platformToken,
		"genre":       r.genreToken,
		"type":        r.contentTypeToken,
		"num_movies":  filter.NumMovies,
	})

	if err := r.extractMovies(ctx); err != nil {
		return r.fail(ctx, 1, "Movie Extraction", "catalog_extraction", err)
	}
	if err := r.generateScripts(ctx); err != nil {
		return r.fail(ctx, 2, "Script Generation", "script_generation", err)
	}
	if err := r.prepareAssets(ctx); err != nil {
		return r.fail(ctx, 3, "Asset Preparation", "asset_preparation", err)
	}
	if err := r.renderAvatars(ctx); err != nil {
		return r.fail(ctx, 4, "HeyGen Video Creation", "avatar_rendering", err)
	}
	if err := r.resolveAvatarURLs(ctx); err != nil {
		return r.fail(ctx, 5, "Video URL Resolution", "url_resolution", err)
	}
	comp, err := r.buildComposition(ctx)
	if err != nil {
		return r.fail(ctx, 6, "Composition Build", "composition_build", err)
	}
	if err := r.submitComposition(ctx, comp); err != nil {
		return r.fail(ctx, 7, "Creatomate Assembly", "render_submission", err)
	}

	rec.Status = models.JobStatusCompleted
	total := time.Since(rec.StartedAt)
	o.emitter.Completed(ctx, total, rec.CompositionID)
	logger.Info("Workflow completed", map[string]interface{}{
		"creatomate_id":  rec.CompositionID,
		"total_duration": total.Seconds(),
		"errors":         len(rec.Errors),
	})

	if err := o.jobCache.SaveRecord(rec); err != nil {
		log.Printf("[orchestrator] failed to save job record: %v", err)
	}
	return rec, nil
}

// stepStart emits the step-started event and returns the step's clock.
func (r *jobRun) stepStart(ctx context.Context, num int, name string) time.Time {
	r.o.emitter.Emit(ctx, num, name, models.ProgressStarted, nil, nil)
	r.logger.Info(fmt.Sprintf("Step %d/%d started: %s", num, totalSteps, name), nil)
	return time.Now()
}

// stepDone records the step timing and emits the step-completed event.
func (r *jobRun) stepDone(ctx context.Context, num int, name, key string, start time.Time, details map[string]interface{}) {
	d := time.Since(start)
	r.rec.StepTimings[key] = d
	r.o.emitter.StepCompleted(ctx, num, name, d, details)
	r.logger.Info(fmt.Sprintf("Step %d/%d completed: %s", num, totalSteps, name), map[string]interface{}{
		"duration": d.Seconds(),
	})
}

// fail records the terminal error, emits step-failed and workflow-failed
// events, and returns the failed record.
func (r *jobRun) fail(ctx context.Context, num int, name, key string, err error) (*models.JobRecord, error) {
	kind := models.ErrorKind("WorkflowError")
	var wf *models.WorkflowError
	if errors.As(err, &wf) {
		kind = wf.Kind
		if wf.Step != "" {
			key = wf.Step
		}
	}

	r.rec.RecordError(string(kind), key, err.Error())
	r.rec.Status = models.JobStatusFailed
	r.o.emitter.StepFailed(ctx, num, name, err.Error())
	r.o.emitter.Failed(ctx, num, err.Error())
	r.logger.Error("Workflow failed", map[string]interface{}{
		"step":  key,
		"kind":  string(kind),
		"error": err.Error(),
	})

	if cerr := r.o.jobCache.SaveRecord(r.rec); cerr != nil {
		log.Printf("[orchestrator] failed to save job record: %v", cerr)
	}
	return r.rec, err
}

// failBeforeStart handles ConfigInvalid conditions detected before step 1.
func (r *jobRun) failBeforeStart(ctx context.Context, err error) (*models.JobRecord, error) {
	wrapped := models.NewWorkflowError(models.ErrConfigInvalid, "validation", err)
	r.rec.RecordError(string(models.ErrConfigInvalid), "validation", err.Error())
	r.rec.Status = models.JobStatusFailed
	r.o.emitter.Failed(ctx, 0, wrapped.Error())
	return r.rec, wrapped
}

// extractMovies runs step 1.
func (r *jobRun) extractMovies(ctx context.Context) error {
	start := r.stepStart(ctx, 1, "Movie Extraction")

	var movies []models.Movie
	hit, err := r.o.jobCache.Load("movies", r.rec.Filter, &movies)
	if err != nil {
		log.Printf("[orchestrator] movie cache read failed, querying live: %v", err)
		hit = false
	}
	if hit && len(movies) == r.rec.Filter.NumMovies {
		log.Printf("[orchestrator] using %d cached movies", len(movies))
	} else {
		movies, err = r.o.catalog.Extract(ctx, r.rec.Filter)
		if err != nil {
			return err
		}
		if err := r.o.jobCache.Save("movies", r.rec.Filter, movies); err != nil {
			log.Printf("[orchestrator] movie cache write failed: %v", err)
		}
	}

	r.rec.Movies = movies
	r.stepDone(ctx, 1, "Movie Extraction", "catalog_extraction", start, map[string]interface{}{
		"movie_count": len(movies),
		"top_title":   movies[0].Title,
	})
	return nil
}

// generateScripts runs step 2. HookTimingUnmet warnings are
// recorded against the record but leave the job running unless strict mode
// escalates them.
func (r *jobRun) generateScripts(ctx context.Context) error {
	start := r.stepStart(ctx, 2, "Script Generation")

	var bundle *models.ScriptBundle
	hit, err := r.o.jobCache.Load("scripts", r.rec.Filter, &bundle)
	if err != nil {
		log.Printf("[orchestrator] script cache read failed, generating live: %v", err)
		hit = false
	}
	if !hit || bundle == nil || len(bundle.Individual) != r.rec.Filter.NumMovies {
		gen := r.o.newScripts(r.ws.Path("scripts"))
		var warnings []llmscript.Warning
		bundle, warnings, err = gen.Generate(ctx, r.rec.Movies, r.rec.Filter)
		if err != nil {
			return err
		}

		for _, w := range warnings {
			r.rec.RecordError(string(w.Kind), "script_generation", w.Message)
			r.logger.Warning(w.Message, map[string]interface{}{"kind": string(w.Kind)})
		}
		if r.o.cfg.StrictMode {
			for _, w := range warnings {
				if w.Kind == models.ErrHookTimingUnmet {
					return models.NewWorkflowError(models.ErrScriptGenerationFailed, "script_generation",
						fmt.Errorf("strict mode: %s", w.Message))
				}
			}
		}

		if err := r.o.jobCache.Save("scripts", r.rec.Filter, bundle); err != nil {
			log.Printf("[orchestrator] script cache write failed: %v", err)
		}
	}

	r.rec.Scripts = bundle
	r.stepDone(ctx, 2, "Script Generation", "script_generation", start, map[string]interface{}{
		"script_count":    len(bundle.Individual),
		"combined_length": len(bundle.Combined),
	})
	return nil
}

// resolveAvatarURLs runs step 5: read each completed AvatarJob's
// result URL and verify it serves video.
func (r *jobRun) resolveAvatarURLs(ctx context.Context) error {
	start := r.stepStart(ctx, 5, "Video URL Resolution")

	urls := make(map[string]string, len(r.rec.AvatarJobs))
	for _, slot := range sortedSlotNames(r.rec.AvatarJobs) {
		job := r.rec.AvatarJobs[slot]
		if job.ResultURL == "" {
			return models.NewWorkflowError(models.ErrAvatarURLInvalid, "url_resolution",
				fmt.Errorf("slot %s has no result URL", slot))
		}
		if err := r.o.checkVideoURL(ctx, job.ResultURL); err != nil {
			return models.NewWorkflowError(models.ErrAvatarURLInvalid, "url_resolution", err)
		}
		urls[slot] = job.ResultURL
	}

	r.rec.AvatarURLs = urls
	r.stepDone(ctx, 5, "Video URL Resolution", "url_resolution", start, map[string]interface{}{
		"url_count": len(urls),
	})
	return nil
}

// buildComposition runs step 6.
func (r *jobRun) buildComposition(ctx context.Context) (models.Composition, error) {
	start := r.stepStart(ctx, 6, "Composition Build")

	strategy := composition.PosterTimingStrategy(r.o.cfg.PosterTimingStrategy)
	comp, err := composition.Build(ctx, strategy, r.rec.Scripts, r.rec.Assets, r.rec.AvatarURLs,
		r.o.cfg.BrandBannerURL, r.o.cfg.IntroImageURL, r.o.cfg.OutroImageURL)
	if err != nil {
		return models.Composition{}, models.NewWorkflowError(models.ErrCompositionSubmissionFailed, "composition_build", err)
	}

	r.stepDone(ctx, 6, "Composition Build", "composition_build", start, map[string]interface{}{
		"element_count": len(comp.Elements),
		"strategy":      string(strategy),
	})
	return comp, nil
}

// submitComposition runs step 7: submit, record the render id, and
// emit creatomate_ready immediately. Rendering completion is the render
// monitor's concern, not this pipeline's.
func (r *jobRun) submitComposition(ctx context.Context, comp models.Composition) error {
	start := r.stepStart(ctx, 7, "Creatomate Assembly")

	renderID, err := r.o.compositor.Submit(ctx, comp)
	if err != nil {
		return models.NewWorkflowError(models.ErrCompositionSubmissionFailed, "render_submission", err)
	}

	r.rec.CompositionID = renderID
	d := time.Since(start)
	r.stepDone(ctx, 7, "Creatomate Assembly", "render_submission", start, map[string]interface{}{
		"creatomate_id": renderID,
	})
	r.o.emitter.CreatomateReady(ctx, renderID, d)
	r.logger.Info("Render handed off to Creatomate", map[string]interface{}{
		"creatomate_id": renderID,
	})
	return nil
}

// sortedSlotNames orders slot keys numerically (movie1, movie2,...).
func sortedSlotNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Slice(names, func(i, j int) bool {
		return slotOrdinal(names[i]) < slotOrdinal(names[j])
	})
	return names
}

func slotOrdinal(slot string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(slot, "movie"))
	if err != nil {
		return 1 << 30
	}
	return n
}
