package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamgank/workflow/internal/config"
	"github.com/streamgank/workflow/internal/llmscript"
	"github.com/streamgank/workflow/internal/models"
	"github.com/streamgank/workflow/internal/progress"
)

// ---- fakes ---------------------------------------------------------------

type fakeCatalog struct {
	movies []models.Movie
	err    error
}

func (f *fakeCatalog) Extract(ctx context.Context, filter models.Filter) ([]models.Movie, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.movies, nil
}

type fakeScripts struct {
	bundle   *models.ScriptBundle
	warnings []llmscript.Warning
	err      error
}

func (f *fakeScripts) Generate(ctx context.Context, movies []models.Movie, filter models.Filter) (*models.ScriptBundle, []llmscript.Warning, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.bundle, f.warnings, nil
}

type fakeAvatar struct {
	mu        sync.Mutex
	failSlots []string
	submitted []string
}

func (f *fakeAvatar) Submit(ctx context.Context, templateID, title, scriptContent string) (string, error) {
	f.mu.Lock()
	f.submitted = append(f.submitted, title)
	f.mu.Unlock()
	return "hg_" + title, nil
}

func (f *fakeAvatar) PollUntilComplete(ctx context.Context, externalID string, scriptLengthChars int) (string, error) {
	for _, slot := range f.failSlots {
		if strings.Contains(externalID, slot) {
			return "", fmt.Errorf("render %s timed out", externalID)
		}
	}
	return "https://resource.heygen.test/" + externalID + ".mp4", nil
}

type fakeClips struct{}

func (f *fakeClips) Submit(ctx context.Context, trailerURL string) (string, error) {
	return "vz_project", nil
}

func (f *fakeClips) PollUntilReady(ctx context.Context, projectID string) (string, error) {
	return "https://vizard.test/clips/first.mp4", nil
}

type fakeUploader struct{}

func (f *fakeUploader) UploadImage(ctx context.Context, publicID string, data []byte) (string, error) {
	return "https://res.cloudinary.test/image/upload/" + publicID + ".png", nil
}

func (f *fakeUploader) UploadVideo(ctx context.Context, publicID string, data []byte, presetName string) (string, error) {
	return "https://res.cloudinary.test/video/upload/" + publicID + ".mp4", nil
}

type fakeCompositor struct {
	mu   sync.Mutex
	comp models.Composition
	err  error
}

func (f *fakeCompositor) Submit(ctx context.Context, comp models.Composition) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	f.comp = comp
	f.mu.Unlock()
	return "render_123", nil
}

// ---- fixtures ------------------------------------------------------------

func horrorMovies(n int) []models.Movie {
	scores := []float64{7.7, 7.6, 7.4, 7.1, 6.9}
	movies := make([]models.Movie, n)
	for i := 0; i < n; i++ {
		movies[i] = models.Movie{
			ID:         100 + i,
			Title:      fmt.Sprintf("The Haunting %d", i+1),
			Year:       2020 + i,
			Genres:     []string{"Horror"},
			Platform:   "netflix",
			IMDBScore:  scores[i],
			IMDBVotes:  50000 - i*1000,
			PosterURL:  fmt.Sprintf("https://posters.test/%d.jpg", i+1),
			TrailerURL: fmt.Sprintf("https://trailers.test/%d.mp4", i+1),
		}
	}
	return movies
}

func scriptBundle(n int) *models.ScriptBundle {
	intro := "Get ready for the scariest horror hits streaming on Netflix."
	hooks := make([]string, n)
	hooks[0] = "These three films will keep you up all night."
	for i := 1; i < n; i++ {
		hooks[i] = fmt.Sprintf("Movie number %d delivers relentless dread from the opening frame and never once lets you catch your breath before the next scare arrives.", i+1)
	}

	individual := make(map[string]string, n)
	for i := 0; i < n; i++ {
		if i == 0 {
			individual[models.Slot(1)] = intro + " " + hooks[0]
		} else {
			individual[models.Slot(i+1)] = hooks[i]
		}
	}

	return &models.ScriptBundle{
		Intro:      intro,
		Hooks:      hooks,
		Combined:   intro + " " + strings.Join(hooks, " "),
		Individual: individual,
	}
}

// ---- harness -------------------------------------------------------------

type capturedEvent struct {
	JobID      string                 `json:"job_id"`
	StepNumber int                    `json:"step_number"`
	StepName   string                 `json:"step_name"`
	Status     string                 `json:"status"`
	Details    map[string]interface{} `json:"details"`
	Sequence   int64                  `json:"sequence"`
}

type eventSink struct {
	mu     sync.Mutex
	events []capturedEvent
	server *httptest.Server
}

func newEventSink(t *testing.T) *eventSink {
	t.Helper()
	sink := &eventSink{}
	sink.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev capturedEvent
		if err := json.NewDecoder(r.Body).Decode(&ev); err == nil {
			sink.mu.Lock()
			sink.events = append(sink.events, ev)
			sink.mu.Unlock()
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(sink.server.Close)
	return sink
}

func (s *eventSink) all() []capturedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]capturedEvent, len(s.events))
	copy(out, s.events)
	return out
}

func (s *eventSink) statuses() []string {
	var out []string
	for _, ev := range s.all() {
		out = append(out, fmt.Sprintf("step_%d_%s", ev.StepNumber, ev.Status))
	}
	return out
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		AppEnv:               config.ModeProd,
		JobID:                "job-test",
		PosterTimingStrategy: "between_clips",
		WorkspaceRoot:        filepath.Join(dir, "workspace"),
		LogsDir:              filepath.Join(dir, "logs"),
		IntroImageURL:        "https://cdn.test/intro.png",
		OutroImageURL:        "https://cdn.test/outro.png",
		BrandBannerURL:       "https://cdn.test/banner.png",
	}
}

type testDeps struct {
	catalog    *fakeCatalog
	scripts    *fakeScripts
	avatar     *fakeAvatar
	clips      *fakeClips
	uploader   *fakeUploader
	compositor *fakeCompositor
	sink       *eventSink
}

func newTestOrchestrator(t *testing.T, cfg *config.Config, n int) (*Orchestrator, *testDeps) {
	t.Helper()

	deps := &testDeps{
		catalog:    &fakeCatalog{movies: horrorMovies(n)},
		scripts:    &fakeScripts{bundle: scriptBundle(n)},
		avatar:     &fakeAvatar{},
		clips:      &fakeClips{},
		uploader:   &fakeUploader{},
		compositor: &fakeCompositor{},
		sink:       newEventSink(t),
	}

	emitter := progress.NewEmitter(deps.sink.server.URL, cfg.JobID)
	o := New(cfg,
		deps.catalog,
		func(string) ScriptGenerator { return deps.scripts },
		deps.avatar,
		deps.clips,
		deps.uploader,
		deps.compositor,
		emitter,
		nil,
	)

	// Replace the seams that shell out or hit the network.
	o.buildPoster = func(ctx context.Context, m models.Movie) ([]byte, error) {
		return []byte("png-bytes"), nil
	}
	o.capture = func(ctx context.Context, catalogURL, workDir, outputPath string) error {
		return os.WriteFile(outputPath, []byte("mp4-bytes"), 0o644)
	}
	o.checkAssetURL = func(ctx context.Context, rawURL string) error { return nil }
	o.checkVideoURL = func(ctx context.Context, rawURL string) error { return nil }
	o.download = func(ctx context.Context, rawURL, destPath string) error {
		return os.WriteFile(destPath, []byte("clip-bytes"), 0o644)
	}
	o.extractFallback = func(ctx context.Context, trailerPath, outputPath string) error {
		return os.WriteFile(outputPath, []byte("clip-bytes"), 0o644)
	}

	return o, deps
}

func testFilter(n int) models.Filter {
	return models.Filter{Country: "US", Platform: "Netflix", Genre: "Horror", ContentType: "Film", NumMovies: n}
}

func errorKind(t *testing.T, err error) models.ErrorKind {
	t.Helper()
	var wf *models.WorkflowError
	require.True(t, errors.As(err, &wf), "expected a WorkflowError, got %v", err)
	return wf.Kind
}

// ---- scenarios -----------------------------------------------------------

func TestRun_HappyPath(t *testing.T) {
	cfg := testConfig(t)
	o, deps := newTestOrchestrator(t, cfg, 3)

	rec, err := o.Run(context.Background(), testFilter(3))
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, rec.Status)
	assert.Empty(t, rec.Errors)

	// Exactly N movies, ranked by score.
	require.Len(t, rec.Movies, 3)
	assert.GreaterOrEqual(t, rec.Movies[0].IMDBScore, rec.Movies[1].IMDBScore)
	assert.GreaterOrEqual(t, rec.Movies[1].IMDBScore, rec.Movies[2].IMDBScore)

	// Intro-integration invariant on the movie1 script.
	require.NotNil(t, rec.Scripts)
	assert.Equal(t, rec.Scripts.Intro+" "+rec.Scripts.Hooks[0], rec.Scripts.Individual["movie1"])
	assert.Len(t, rec.Scripts.Individual, 3)

	// Every slot got a distinct result URL.
	require.Len(t, rec.AvatarURLs, 3)
	seen := map[string]bool{}
	for _, url := range rec.AvatarURLs {
		assert.False(t, seen[url], "duplicate avatar URL %s", url)
		seen[url] = true
	}

	// Composition: intro + 3x(avatar+poster+clip) + outro + banner = 12.
	assert.Len(t, deps.compositor.comp.Elements, 12)
	assert.Equal(t, "render_123", rec.CompositionID)

	// Asset bundle sizes and scroll video.
	require.NotNil(t, rec.Assets)
	assert.Len(t, rec.Assets.Posters, 3)
	assert.Len(t, rec.Assets.Clips, 3)
	require.NotNil(t, rec.Assets.ScrollVideo)

	// Progress fan-out: started, each step's started/completed pair, the
	// creatomate_ready handoff, final completion.
	statuses := deps.sink.statuses()
	assert.Equal(t, "step_0_started", statuses[0])
	assert.Contains(t, statuses, "step_1_completed")
	assert.Contains(t, statuses, "step_7_completed")
	assert.Contains(t, statuses, "step_7_creatomate_ready")
	assert.Equal(t, "step_8_completed", statuses[len(statuses)-1])
}

func TestRun_ProgressSequenceStrictlyIncreasing(t *testing.T) {
	cfg := testConfig(t)
	o, deps := newTestOrchestrator(t, cfg, 3)

	_, err := o.Run(context.Background(), testFilter(3))
	require.NoError(t, err)

	events := deps.sink.all()
	require.NotEmpty(t, events)
	for i := 1; i < len(events); i++ {
		assert.Greater(t, events[i].Sequence, events[i-1].Sequence,
			"sequence must be strictly increasing at event %d", i)
	}
}

func TestRun_SingleMovieBoundary(t *testing.T) {
	cfg := testConfig(t)
	o, deps := newTestOrchestrator(t, cfg, 1)

	rec, err := o.Run(context.Background(), testFilter(1))
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, rec.Status)
	assert.Len(t, rec.AvatarJobs, 1)
	// intro + avatar + poster + clip + outro + banner = 6.
	assert.Len(t, deps.compositor.comp.Elements, 6)
}

func TestRun_HookTimingUnmetIsNonFatal(t *testing.T) {
	cfg := testConfig(t)
	o, deps := newTestOrchestrator(t, cfg, 3)
	deps.scripts.warnings = []llmscript.Warning{{
		Kind:    models.ErrHookTimingUnmet,
		Message: "movie2: hook accepted outside the timing band after 3 retries",
	}}

	rec, err := o.Run(context.Background(), testFilter(3))
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, rec.Status)
	require.Len(t, rec.Errors, 1)
	assert.Equal(t, string(models.ErrHookTimingUnmet), rec.Errors[0].Kind)
}

func TestRun_StrictModeEscalatesTimingWarning(t *testing.T) {
	cfg := testConfig(t)
	cfg.StrictMode = true
	o, deps := newTestOrchestrator(t, cfg, 3)
	deps.scripts.warnings = []llmscript.Warning{{
		Kind:    models.ErrHookTimingUnmet,
		Message: "movie2: hook accepted outside the timing band after 3 retries",
	}}

	rec, err := o.Run(context.Background(), testFilter(3))
	require.Error(t, err)
	assert.Equal(t, models.JobStatusFailed, rec.Status)
	assert.Equal(t, models.ErrScriptGenerationFailed, errorKind(t, err))
}

func TestRun_OneAvatarFailureFailsJob(t *testing.T) {
	cfg := testConfig(t)
	o, deps := newTestOrchestrator(t, cfg, 3)
	deps.avatar.failSlots = []string{"movie2"}

	rec, err := o.Run(context.Background(), testFilter(3))
	require.Error(t, err)
	assert.Equal(t, models.JobStatusFailed, rec.Status)
	assert.Equal(t, models.ErrAvatarRenderFailed, errorKind(t, err))

	// The failed slot is terminal-failed; the others completed and their
	// result URLs are recorded but unused.
	require.Len(t, rec.AvatarJobs, 3)
	assert.Equal(t, models.AvatarStatusFailed, rec.AvatarJobs["movie2"].Status)
	assert.Equal(t, models.AvatarStatusCompleted, rec.AvatarJobs["movie1"].Status)
	assert.NotEmpty(t, rec.AvatarJobs["movie1"].ResultURL)
	assert.Equal(t, models.AvatarStatusCompleted, rec.AvatarJobs["movie3"].Status)
	assert.NotEmpty(t, rec.AvatarJobs["movie3"].ResultURL)
	assert.Empty(t, rec.AvatarURLs)
}

func TestRun_ScrollVideoAbsentIsNonFatal(t *testing.T) {
	cfg := testConfig(t)
	o, deps := newTestOrchestrator(t, cfg, 3)
	o.capture = func(ctx context.Context, catalogURL, workDir, outputPath string) error {
		return fmt.Errorf("browser exited with status 1")
	}

	rec, err := o.Run(context.Background(), testFilter(3))
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, rec.Status)
	require.NotNil(t, rec.Assets)
	assert.Nil(t, rec.Assets.ScrollVideo)

	require.Len(t, rec.Errors, 1)
	assert.Equal(t, string(models.ErrScrollVideoUnavailable), rec.Errors[0].Kind)

	// The composition still opens with the static intro image.
	require.NotEmpty(t, deps.compositor.comp.Elements)
	first := deps.compositor.comp.Elements[0]
	assert.Equal(t, "image", first.Type)
	assert.Equal(t, cfg.IntroImageURL, first.Source)
}

func TestRun_CompositorRejectionFailsJob(t *testing.T) {
	cfg := testConfig(t)
	o, deps := newTestOrchestrator(t, cfg, 3)
	deps.compositor.err = fmt.Errorf("creatomate render returned status 400")

	rec, err := o.Run(context.Background(), testFilter(3))
	require.Error(t, err)
	assert.Equal(t, models.JobStatusFailed, rec.Status)
	assert.Equal(t, models.ErrCompositionSubmissionFailed, errorKind(t, err))

	// No rollback: everything produced before step 7 stays on the record.
	assert.NotNil(t, rec.Assets)
	assert.NotEmpty(t, rec.AvatarURLs)

	statuses := deps.sink.statuses()
	assert.Equal(t, "step_7_failed", statuses[len(statuses)-1])
}

func TestRun_EmptyTrailerFailsAssetStep(t *testing.T) {
	cfg := testConfig(t)
	o, deps := newTestOrchestrator(t, cfg, 3)
	deps.catalog.movies[1].TrailerURL = ""

	rec, err := o.Run(context.Background(), testFilter(3))
	require.Error(t, err)
	assert.Equal(t, models.JobStatusFailed, rec.Status)
	assert.Equal(t, models.ErrAssetGenerationFailed, errorKind(t, err))
	assert.Contains(t, err.Error(), "no trailer URL")
}

func TestRun_UnknownGenreFailsFast(t *testing.T) {
	cfg := testConfig(t)
	o, _ := newTestOrchestrator(t, cfg, 3)

	filter := testFilter(3)
	filter.Genre = "Zombies"

	rec, err := o.Run(context.Background(), filter)
	require.Error(t, err)
	assert.Equal(t, models.JobStatusFailed, rec.Status)
	assert.Equal(t, models.ErrConfigInvalid, errorKind(t, err))
	// Fail-fast means no step ever ran.
	assert.Empty(t, rec.StepTimings)
}

func TestRun_StepTimingsRecordedPerStep(t *testing.T) {
	cfg := testConfig(t)
	o, _ := newTestOrchestrator(t, cfg, 3)

	rec, err := o.Run(context.Background(), testFilter(3))
	require.NoError(t, err)

	for _, key := range []string{
		"catalog_extraction", "script_generation", "asset_preparation",
		"avatar_rendering", "url_resolution", "composition_build", "render_submission",
	} {
		assert.Contains(t, rec.StepTimings, key)
	}
}

func TestRun_WorkspaceCleanedUpOnCompletion(t *testing.T) {
	cfg := testConfig(t)
	o, _ := newTestOrchestrator(t, cfg, 3)

	rec, err := o.Run(context.Background(), testFilter(3))
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Join(cfg.WorkspaceRoot, "jobs", rec.JobID))
	assert.True(t, os.IsNotExist(statErr), "job workspace should be removed on completion")
}

func TestSafeTitle(t *testing.T) {
	assert.Equal(t, "the_haunting_of_hill_house", safeTitle("The Haunting of Hill House"))
	assert.Equal(t, "alien_3", safeTitle("Alien³ 3"))
	assert.Equal(t, "28_days_later", safeTitle("28 Days Later..."))
}

func TestSortedSlotNames(t *testing.T) {
	m := map[string]string{"movie3": "c", "movie1": "a", "movie10": "j", "movie2": "b"}
	assert.Equal(t, []string{"movie1", "movie2", "movie3", "movie10"}, sortedSlotNames(m))
}
