package orchestrator

import (
	"context"
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/streamgank/workflow/internal/catalogmap"
	"github.com/streamgank/workflow/internal/models"
)

// clipPreset is the Cloudinary transformation applied to every uploaded
// trailer clip.
const clipPreset = "vertical_portrait_fill"

// prepareAssets runs step 3: enhanced posters, trailer clips, and
// the scroll screencast run as three concurrent sub-tasks. Posters and
// clips parallelize across movies internally, bounded to min(N, 8) workers.
// A poster or clip failure fails the step; a scroll failure degrades to
// scroll_video = nil.
func (r *jobRun) prepareAssets(ctx context.Context) error {
	start := r.stepStart(ctx, 3, "Asset Preparation")

	var assets *models.AssetBundle
	hit, err := r.o.jobCache.Load("assets", r.rec.Filter, &assets)
	if err != nil {
		log.Printf("[orchestrator] asset cache read failed, generating live: %v", err)
		hit = false
	}
	if hit && assets != nil && len(assets.Posters) == r.rec.Filter.NumMovies && len(assets.Clips) == r.rec.Filter.NumMovies {
		r.rec.Assets = assets
		r.stepDone(ctx, 3, "Asset Preparation", "asset_preparation", start, map[string]interface{}{
			"posters": len(assets.Posters), "clips": len(assets.Clips), "cached": true,
		})
		return nil
	}

	sem := make(chan struct{}, workerBound(len(r.rec.Movies)))

	var mu sync.Mutex
	posters := make(map[string]string, len(r.rec.Movies))
	clips := make(map[string]string, len(r.rec.Movies))
	var scrollVideo *string

	// The three sub-tasks use a plain errgroup.Group (no shared
	// cancellation): a poster failure must not abort an expensive in-flight
	// clip extraction, so every peer runs to termination and the step
	// collects the outcomes afterwards.
	var g errgroup.Group

	g.Go(func() error {
		var pg errgroup.Group
		for i := range r.rec.Movies {
			movie := r.rec.Movies[i]
			slot := models.Slot(i + 1)
			pg.Go(func() error {
				return r.withSlot(ctx, sem, func() error {
					url, err := r.buildPosterAsset(ctx, movie)
					if err != nil {
						return fmt.Errorf("poster for %s: %w", slot, err)
					}
					mu.Lock()
					posters[slot] = url
					mu.Unlock()
					return nil
				})
			})
		}
		if err := pg.Wait(); err != nil {
			return fmt.Errorf("poster generation: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		var cg errgroup.Group
		for i := range r.rec.Movies {
			movie := r.rec.Movies[i]
			slot := models.Slot(i + 1)
			cg.Go(func() error {
				return r.withSlot(ctx, sem, func() error {
					url, err := r.buildClipAsset(ctx, movie, slot)
					if err != nil {
						return fmt.Errorf("clip for %s: %w", slot, err)
					}
					mu.Lock()
					clips[slot] = url
					mu.Unlock()
					return nil
				})
			})
		}
		if err := cg.Wait(); err != nil {
			return fmt.Errorf("clip extraction: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		url, err := r.buildScrollAsset(ctx)
		if err != nil {
			// Best-effort artifact: record the warning and leave
			// scroll_video nil. The composition opens with the static
			// intro image either way; composition.Build does not place the
			// scroll video.
			r.rec.RecordError(string(models.ErrScrollVideoUnavailable), "asset_preparation", err.Error())
			r.logger.Warning("Scroll screencast unavailable, composition will use static intro", map[string]interface{}{
				"error": err.Error(),
			})
			return nil
		}
		mu.Lock()
		scrollVideo = &url
		mu.Unlock()
		return nil
	})

	if err := g.Wait(); err != nil {
		return models.NewWorkflowError(models.ErrAssetGenerationFailed, "asset_preparation", err)
	}

	// Post-condition: every poster and clip URL resolves at end of
	// step 3.
	for slot, url := range posters {
		if err := r.o.checkAssetURL(ctx, url); err != nil {
			return models.NewWorkflowError(models.ErrAssetGenerationFailed, "asset_preparation",
				fmt.Errorf("poster URL for %s failed verification: %w", slot, err))
		}
	}
	for slot, url := range clips {
		if err := r.o.checkAssetURL(ctx, url); err != nil {
			return models.NewWorkflowError(models.ErrAssetGenerationFailed, "asset_preparation",
				fmt.Errorf("clip URL for %s failed verification: %w", slot, err))
		}
	}

	assets = &models.AssetBundle{Posters: posters, Clips: clips, ScrollVideo: scrollVideo}
	if err := r.o.jobCache.Save("assets", r.rec.Filter, assets); err != nil {
		log.Printf("[orchestrator] asset cache write failed: %v", err)
	}

	r.rec.Assets = assets
	r.stepDone(ctx, 3, "Asset Preparation", "asset_preparation", start, map[string]interface{}{
		"posters":      len(posters),
		"clips":        len(clips),
		"scroll_video": scrollVideo != nil,
	})
	return nil
}

// buildPosterAsset composites and uploads one enhanced poster.
func (r *jobRun) buildPosterAsset(ctx context.Context, movie models.Movie) (string, error) {
	data, err := r.o.buildPoster(ctx, movie)
	if err != nil {
		return "", err
	}

	publicID := fmt.Sprintf("enhanced_posters/%s_%d", safeTitle(movie.Title), movie.ID)
	url, err := r.o.uploader.UploadImage(ctx, publicID, data)
	if err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}
	log.Printf("[orchestrator] poster uploaded for %q -> %s", movie.Title, url)
	return url, nil
}

// buildClipAsset extracts and uploads one trailer highlight. An
// empty trailer URL fails the slot — no silent skip. A Vizard failure falls
// back to local scene-detection extraction before giving up.
func (r *jobRun) buildClipAsset(ctx context.Context, movie models.Movie, slot string) (string, error) {
	if movie.TrailerURL == "" {
		return "", fmt.Errorf("movie %q has no trailer URL", movie.Title)
	}

	publicID := fmt.Sprintf("movie_clips/%s_%d_clip", safeTitle(movie.Title), movie.ID)

	clipPath := r.ws.Path(slot + "_clip.mp4")
	if err := r.extractClipViaVizard(ctx, movie, clipPath); err != nil {
		log.Printf("[orchestrator] vizard extraction failed for %q, trying local fallback: %v", movie.Title, err)
		if fbErr := r.extractClipLocally(ctx, movie, slot, clipPath); fbErr != nil {
			return "", fmt.Errorf("vizard failed (%v) and local fallback failed: %w", err, fbErr)
		}
	}

	data, err := os.ReadFile(clipPath)
	if err != nil {
		return "", fmt.Errorf("failed to read extracted clip: %w", err)
	}

	url, err := r.o.uploader.UploadVideo(ctx, publicID, data, clipPreset)
	if err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}
	log.Printf("[orchestrator] clip uploaded for %q -> %s", movie.Title, url)
	return url, nil
}

// extractClipViaVizard submits the trailer to the clip-extraction service,
// long-polls within the per-movie budget, and downloads the first clip.
func (r *jobRun) extractClipViaVizard(ctx context.Context, movie models.Movie, destPath string) error {
	projectID, err := r.o.clips.Submit(ctx, movie.TrailerURL)
	if err != nil {
		return fmt.Errorf("submit failed: %w", err)
	}

	clipURL, err := r.o.clips.PollUntilReady(ctx, projectID)
	if err != nil {
		return fmt.Errorf("poll failed: %w", err)
	}

	if err := r.o.download(ctx, clipURL, destPath); err != nil {
		return fmt.Errorf("clip download failed: %w", err)
	}
	return nil
}

// extractClipLocally is the last-resort fallback: download the trailer
// and cut a highlight segment with scene detection.
func (r *jobRun) extractClipLocally(ctx context.Context, movie models.Movie, slot, destPath string) error {
	trailerPath := r.ws.Path(slot + "_trailer.mp4")
	if err := r.o.download(ctx, movie.TrailerURL, trailerPath); err != nil {
		return fmt.Errorf("trailer download failed: %w", err)
	}
	if err := r.o.extractFallback(ctx, trailerPath, destPath); err != nil {
		return fmt.Errorf("highlight extraction failed: %w", err)
	}
	return nil
}

// buildScrollAsset captures and uploads the scroll screencast.
func (r *jobRun) buildScrollAsset(ctx context.Context) (string, error) {
	catalogURL := catalogmap.BuildCatalogURL(r.rec.Filter.Country, r.genreToken, r.platformToken, r.contentTypeToken)

	outPath := r.ws.Path("scroll.mp4")
	if err := r.o.capture(ctx, catalogURL, r.ws.Path("scroll_frames"), outPath); err != nil {
		return "", fmt.Errorf("screencast capture failed: %w", err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return "", fmt.Errorf("failed to read screencast: %w", err)
	}

	publicID := fmt.Sprintf("scroll_videos/scroll_%s", r.rec.JobID)
	url, err := r.o.uploader.UploadVideo(ctx, publicID, data, clipPreset)
	if err != nil {
		return "", fmt.Errorf("screencast upload failed: %w", err)
	}
	return url, nil
}

// withSlot bounds per-movie fan-out with the step's shared semaphore,
// bailing out if the job is cancelled while waiting.
func (r *jobRun) withSlot(ctx context.Context, sem chan struct{}, fn func() error) error {
	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("cancelled while waiting for worker slot: %w", ctx.Err())
	}
	defer func() { <-sem }()
	return fn()
}

// workerBound bounds fan-out to min(N, 8) workers.
func workerBound(n int) int {
	if n < 1 {
		return 1
	}
	if n > 8 {
		return 8
	}
	return n
}

var unsafeTitleChars = regexp.MustCompile(`[^a-z0-9]+`)

// safeTitle derives the filesystem/CDN-safe token used in deterministic
// public IDs.
func safeTitle(title string) string {
	s := unsafeTitleChars.ReplaceAllString(strings.ToLower(title), "_")
	return strings.Trim(s, "_")
}
