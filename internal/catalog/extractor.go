package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/streamgank/workflow/internal/catalogmap"
	"github.com/streamgank/workflow/internal/models"
)

// Extractor takes a Filter and returns exactly N Movie records.
type Extractor struct {
	db *DB
}

// NewExtractor constructs an Extractor bound to the given catalog store.
func NewExtractor(db *DB) *Extractor {
	return &Extractor{db: db}
}

// Extract builds a query joining title / localization / genre tables,
// applies the four equality predicates, orders by imdb_score desc then
// imdb_votes desc, and limits to filter.NumMovies. It never returns a
// partial result: fewer than N matching rows is CatalogEmpty; any
// transport error is CatalogUnavailable.
func (e *Extractor) Extract(ctx context.Context, filter models.Filter) ([]models.Movie, error) {
	genreToken, ok := catalogmap.NormalizeGenre(filter.Genre)
	if !ok {
		return nil, models.NewWorkflowError(models.ErrConfigInvalid, "catalog_extraction", fmt.Errorf("unknown genre: %s", filter.Genre))
	}
	platformToken, ok := catalogmap.NormalizePlatform(filter.Platform)
	if !ok {
		return nil, models.NewWorkflowError(models.ErrConfigInvalid, "catalog_extraction", fmt.Errorf("unknown platform: %s", filter.Platform))
	}
	contentTypeToken, ok := catalogmap.NormalizeContentType(filter.ContentType)
	if !ok {
		return nil, models.NewWorkflowError(models.ErrConfigInvalid, "catalog_extraction", fmt.Errorf("unknown content_type: %s", filter.ContentType))
	}
	if filter.NumMovies < 1 {
		return nil, models.NewWorkflowError(models.ErrConfigInvalid, "catalog_extraction", fmt.Errorf("num_movies must be >= 1, got %d", filter.NumMovies))
	}

	query := `
		SELECT
			m.id, m.title, m.release_year, m.genres, m.platform_name,
			m.imdb_score, m.imdb_votes, m.poster_url, m.trailer_url, m.runtime_minutes
		FROM movies m
		JOIN movie_localizations ml ON ml.movie_id = m.id
		JOIN movie_genres mg ON mg.movie_id = m.id
		WHERE ml.country_code = $1
		  AND m.platform_name = $2
		  AND mg.genre = $3
		  AND m.content_type = $4
		ORDER BY m.imdb_score DESC, m.imdb_votes DESC
		LIMIT $5
	`

	rows, err := e.db.QueryContext(ctx, query, filter.Country, platformToken, genreToken, contentTypeToken, filter.NumMovies)
	if err != nil {
		return nil, models.NewWorkflowError(models.ErrCatalogUnavailable, "catalog_extraction", err)
	}
	defer rows.Close()

	var movies []models.Movie
	for rows.Next() {
		var (
			m          models.Movie
			genresCSV  string
			trailerURL sql.NullString
			runtime    sql.NullInt64
		)
		if err := rows.Scan(&m.ID, &m.Title, &m.Year, &genresCSV, &m.Platform, &m.IMDBScore, &m.IMDBVotes, &m.PosterURL, &trailerURL, &runtime); err != nil {
			return nil, models.NewWorkflowError(models.ErrCatalogUnavailable, "catalog_extraction", fmt.Errorf("failed to scan movie row: %w", err))
		}
		m.Genres = splitGenres(genresCSV)
		if trailerURL.Valid {
			m.TrailerURL = trailerURL.String
		}
		if runtime.Valid {
			rt := int(runtime.Int64)
			m.RuntimeMinutes = &rt
		}
		if m.Title == "" {
			return nil, models.NewWorkflowError(models.ErrCatalogUnavailable, "catalog_extraction", fmt.Errorf("movie %d has an empty title", m.ID))
		}
		movies = append(movies, m)
	}
	if err := rows.Err(); err != nil {
		return nil, models.NewWorkflowError(models.ErrCatalogUnavailable, "catalog_extraction", err)
	}

	if len(movies) < filter.NumMovies {
		return nil, models.NewWorkflowError(models.ErrCatalogEmpty, "catalog_extraction", fmt.Errorf("found %d movies, need %d", len(movies), filter.NumMovies))
	}

	return movies, nil
}

func splitGenres(csv string) []string {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
