package catalog

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/streamgank/workflow/internal/models"
)

func newMockExtractor(t *testing.T) (*Extractor, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewExtractor(&DB{DB: db}), mock
}

func TestExtract_ReturnsExactlyNSortedByScore(t *testing.T) {
	e, mock := newMockExtractor(t)

	rows := sqlmock.NewRows([]string{
		"id", "title", "release_year", "genres", "platform_name",
		"imdb_score", "imdb_votes", "poster_url", "trailer_url", "runtime_minutes",
	}).
		AddRow(1, "Hereditary", 2018, "Horror", "netflix", 7.7, 300000, "https://p/1.jpg", "https://t/1.mp4", 127).
		AddRow(2, "The Witch", 2015, "Horror", "netflix", 7.6, 200000, "https://p/2.jpg", "https://t/2.mp4", 92).
		AddRow(3, "It Follows", 2014, "Horror", "netflix", 7.4, 150000, "https://p/3.jpg", "https://t/3.mp4", 100)

	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	filter := models.Filter{Country: "US", Platform: "Netflix", Genre: "Horror", ContentType: "Film", NumMovies: 3}
	movies, err := e.Extract(context.Background(), filter)
	require.NoError(t, err)
	require.Len(t, movies, 3)
	require.Equal(t, "Hereditary", movies[0].Title)
	require.GreaterOrEqual(t, movies[0].IMDBScore, movies[1].IMDBScore)
	require.GreaterOrEqual(t, movies[1].IMDBScore, movies[2].IMDBScore)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExtract_FewerThanN_IsCatalogEmpty(t *testing.T) {
	e, mock := newMockExtractor(t)

	rows := sqlmock.NewRows([]string{
		"id", "title", "release_year", "genres", "platform_name",
		"imdb_score", "imdb_votes", "poster_url", "trailer_url", "runtime_minutes",
	}).AddRow(1, "Hereditary", 2018, "Horror", "netflix", 7.7, 300000, "https://p/1.jpg", nil, nil)

	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	filter := models.Filter{Country: "US", Platform: "Netflix", Genre: "Horror", ContentType: "Film", NumMovies: 3}
	_, err := e.Extract(context.Background(), filter)
	require.Error(t, err)

	var werr *models.WorkflowError
	require.ErrorAs(t, err, &werr)
	require.Equal(t, models.ErrCatalogEmpty, werr.Kind)
}

func TestExtract_UnknownGenre_IsConfigInvalid(t *testing.T) {
	e, _ := newMockExtractor(t)

	filter := models.Filter{Country: "US", Platform: "Netflix", Genre: "Nonsense", ContentType: "Film", NumMovies: 3}
	_, err := e.Extract(context.Background(), filter)
	require.Error(t, err)

	var werr *models.WorkflowError
	require.ErrorAs(t, err, &werr)
	require.Equal(t, models.ErrConfigInvalid, werr.Kind)
}
