package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamgank/workflow/internal/config"
	"github.com/streamgank/workflow/internal/models"
)

func sampleFilter() models.Filter {
	return models.Filter{Country: "US", Platform: "Netflix", Genre: "Horror", ContentType: "Film", NumMovies: 3}
}

func TestSaveLoad_DevWritesLocalReads(t *testing.T) {
	dir := t.TempDir()

	movies := []models.Movie{{ID: 1, Title: "The Haunting", IMDBScore: 7.7}}

	dev := New(dir, config.ModeDev)
	require.NoError(t, dev.Save("movies", sampleFilter(), movies))

	local := New(dir, config.ModeLocal)
	var loaded []models.Movie
	hit, err := local.Load("movies", sampleFilter(), &loaded)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, movies, loaded)
}

func TestLoad_DifferentFilterMisses(t *testing.T) {
	dir := t.TempDir()

	dev := New(dir, config.ModeDev)
	require.NoError(t, dev.Save("movies", sampleFilter(), []models.Movie{{ID: 1}}))

	other := sampleFilter()
	other.Genre = "Comedy"

	local := New(dir, config.ModeLocal)
	var loaded []models.Movie
	hit, err := local.Load("movies", other, &loaded)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestProdNeitherReadsNorWrites(t *testing.T) {
	dir := t.TempDir()

	// Seed via dev so there is something a misbehaving prod read could find.
	dev := New(dir, config.ModeDev)
	require.NoError(t, dev.Save("movies", sampleFilter(), []models.Movie{{ID: 1}}))

	prod := New(dir, config.ModeProd)
	require.NoError(t, prod.Save("scripts", sampleFilter(), "ignored"))

	var loaded []models.Movie
	hit, err := prod.Load("movies", sampleFilter(), &loaded)
	require.NoError(t, err)
	assert.False(t, hit)

	var scripts string
	hit, err = New(dir, config.ModeLocal).Load("scripts", sampleFilter(), &scripts)
	require.NoError(t, err)
	assert.False(t, hit, "prod Save must not have written anything")
}

func TestNilCacheIsInert(t *testing.T) {
	var c *Cache
	require.NoError(t, c.Save("movies", sampleFilter(), nil))
	hit, err := c.Load("movies", sampleFilter(), nil)
	require.NoError(t, err)
	assert.False(t, hit)
	require.NoError(t, c.SaveRecord(&models.JobRecord{JobID: "x"}))
}

// Round-trip invariant: a JobRecord serialized to disk and reloaded is
// equivalent modulo started_at precision.
func TestJobRecord_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	rec := models.NewJobRecord(sampleFilter())
	rec.Movies = []models.Movie{{ID: 1, Title: "The Haunting", Year: 2021, IMDBScore: 7.7, IMDBVotes: 50000}}
	rec.Scripts = &models.ScriptBundle{
		Intro:      "Get ready.",
		Hooks:      []string{"Hook one.", "Hook two."},
		Combined:   "Get ready. Hook one. Hook two.",
		Individual: map[string]string{"movie1": "Get ready. Hook one.", "movie2": "Hook two."},
	}
	scroll := "https://cdn.test/scroll.mp4"
	rec.Assets = &models.AssetBundle{
		Posters:     map[string]string{"movie1": "https://cdn.test/p1.png"},
		Clips:       map[string]string{"movie1": "https://cdn.test/c1.mp4"},
		ScrollVideo: &scroll,
	}
	rec.AvatarJobs = map[string]*models.AvatarJob{
		"movie1": {Slot: "movie1", ExternalID: "hg_1", Status: models.AvatarStatusCompleted, ResultURL: "https://cdn.test/a1.mp4", ScriptLengthChars: 120},
	}
	rec.AvatarURLs = map[string]string{"movie1": "https://cdn.test/a1.mp4"}
	rec.CompositionID = "render_123"
	rec.StepTimings["catalog_extraction"] = 1500 * time.Millisecond
	rec.RecordError(string(models.ErrHookTimingUnmet), "script_generation", "movie2 out of band")
	rec.Status = models.JobStatusCompleted

	c := New(dir, config.ModeDev)
	require.NoError(t, c.SaveRecord(rec))

	got, err := c.LoadRecord(rec.JobID)
	require.NoError(t, err)

	// Equivalence modulo timestamps.
	got.StartedAt = rec.StartedAt
	require.Len(t, got.Errors, 1)
	got.Errors[0].At = rec.Errors[0].At
	assert.Equal(t, rec, got)
}

func TestLoadRecord_MissingErrors(t *testing.T) {
	c := New(t.TempDir(), config.ModeDev)
	_, err := c.LoadRecord("nope")
	assert.Error(t, err)
}
