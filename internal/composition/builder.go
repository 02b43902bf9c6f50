// Package composition assembles the compositor's timeline document from a
// job's scripts, assets, and resolved avatar URLs.
package composition

import (
	"context"
	"fmt"
	"sort"

	"github.com/streamgank/workflow/internal/media"
	"github.com/streamgank/workflow/internal/models"
)

// PosterTimingStrategy selects how enhanced posters are placed relative to
// their avatar video.
type PosterTimingStrategy string

const (
	// StrategyHeyGenLast3s overlays the poster on the last 3s of its avatar
	// video (default).
	StrategyHeyGenLast3s PosterTimingStrategy = "heygen_last3s"
	// StrategyBetweenClips gives the poster its own 3s slot on the main
	// track between the avatar video and the movie clip.
	StrategyBetweenClips PosterTimingStrategy = "between_clips"
)

const (
	introDuration      = 1.0
	outroDuration      = 2.0
	posterDuration     = 3.0
	posterFade         = 0.3
	clipTrimSeconds    = 8.0
	brandBannerY       = 6.25
	brandBannerHeight  = 12.5
	estimatedCharsPerS = 15.0
)

// Build assembles the Composition document for the given strategy. scripts
// supplies per-slot script character lengths (fallback duration estimate
// when a probe fails), assets supplies posters/clips, avatarURLs supplies
// the resolved HeyGen render URL per slot. The first element is always the
// static intro image; assets.ScrollVideo is not placed on the timeline.
func Build(ctx context.Context, strategy PosterTimingStrategy, scripts *models.ScriptBundle, assets *models.AssetBundle, avatarURLs map[string]string, brandBannerURL, introImageURL, outroImageURL string) (models.Composition, error) {
	slots := sortedSlots(avatarURLs)
	if len(slots) == 0 {
		return models.Composition{}, fmt.Errorf("composition build: no avatar URLs to place")
	}

	durations := probeAvatarDurations(ctx, slots, avatarURLs, scripts)
	clipDurations := probeClipDurations(ctx, slots, assets.Clips)

	var elements []models.CompositionElement
	elements = append(elements, models.CompositionElement{
		Track:    "main",
		Type:     "image",
		Source:   introImageURL,
		Duration: introDuration,
	})

	cursor := introDuration
	for _, slot := range slots {
		avatarURL := avatarURLs[slot]
		avatarDuration := durations[slot]

		elements = append(elements, models.CompositionElement{
			Track:    "main",
			Type:     "video",
			Source:   avatarURL,
			Slot:     slot,
			Start:    cursor,
			Duration: avatarDuration, // 0 = natural when the probe produced nothing usable
		})

		posterURL := assets.Posters[slot]
		clipURL := assets.Clips[slot]
		clipDuration := clipDurations[slot]

		switch strategy {
		case StrategyBetweenClips:
			posterStart := cursor + avatarDuration
			elements = append(elements, models.CompositionElement{
				Track:    "main",
				Type:     "image",
				Source:   posterURL,
				Slot:     slot,
				Start:    posterStart,
				Duration: posterDuration,
				FadeIn:   posterFade,
				FadeOut:  posterFade,
			})
			cursor = posterStart + posterDuration
		default: // StrategyHeyGenLast3s
			posterStart := cursor + avatarDuration - posterDuration
			if posterStart < cursor {
				posterStart = cursor
			}
			elements = append(elements, models.CompositionElement{
				Track:    "overlay",
				Type:     "image",
				Source:   posterURL,
				Slot:     slot,
				Start:    posterStart,
				Duration: posterDuration,
				FadeIn:   posterFade,
				FadeOut:  posterFade,
			})
			cursor = cursor + avatarDuration
		}

		if clipURL != "" {
			// The clip plays from its beginning: its first 8 seconds, or
			// its natural length when the clip is shorter than that.
			elements = append(elements, models.CompositionElement{
				Track:    "main",
				Type:     "video",
				Source:   clipURL,
				Slot:     slot,
				Start:    cursor,
				Duration: clipDuration,
			})
			cursor += clipDuration
		}
	}

	elements = append(elements, models.CompositionElement{
		Track:    "main",
		Type:     "image",
		Source:   outroImageURL,
		Start:    cursor,
		Duration: outroDuration,
	})
	cursor += outroDuration

	if brandBannerURL != "" {
		elements = append(elements, models.CompositionElement{
			Track:     "overlay",
			Type:      "image",
			Source:    brandBannerURL,
			Start:     introDuration,
			Duration:  cursor - introDuration,
			Y:         brandBannerY,
			HeightPct: brandBannerHeight,
		})
	}

	return models.Composition{
		Width:        1080,
		Height:       1920,
		FrameRate:    30,
		TimelineType: "sequential",
		OutputFormat: "mp4",
		Elements:     elements,
	}, nil
}

func sortedSlots(avatarURLs map[string]string) []string {
	slots := make([]string, 0, len(avatarURLs))
	for slot := range avatarURLs {
		slots = append(slots, slot)
	}
	sort.Slice(slots, func(i, j int) bool {
		return slotIndex(slots[i]) < slotIndex(slots[j])
	})
	return slots
}

func slotIndex(slot string) int {
	for i := 1; i <= 64; i++ {
		if models.Slot(i) == slot {
			return i
		}
	}
	return 1 << 30
}

// probeAvatarDurations runs a HEAD + metadata probe per avatar
// URL, run in parallel, falling back to length_chars/15 estimation on any
// failure.
func probeAvatarDurations(ctx context.Context, slots []string, avatarURLs map[string]string, scripts *models.ScriptBundle) map[string]float64 {
	type result struct {
		slot     string
		duration float64
	}
	results := make(chan result, len(slots))

	for _, slot := range slots {
		go func(slot string) {
			url := avatarURLs[slot]
			duration, err := probeOne(ctx, url)
			if err != nil {
				duration = estimateDuration(scripts, slot)
			}
			results <- result{slot: slot, duration: duration}
		}(slot)
	}

	durations := make(map[string]float64, len(slots))
	for range slots {
		r := <-results
		durations[r.slot] = r.duration
	}
	return durations
}

// probeClipDurations mirrors probeAvatarDurations for the movie clips: the
// clip element plays min(natural, clipTrimSeconds), so a probed clip
// shorter than the cap keeps its natural length. When the probe fails the
// cap alone applies.
func probeClipDurations(ctx context.Context, slots []string, clips map[string]string) map[string]float64 {
	type result struct {
		slot     string
		duration float64
	}
	results := make(chan result, len(slots))

	for _, slot := range slots {
		go func(slot string) {
			duration := clipTrimSeconds
			if url := clips[slot]; url != "" {
				if probed, err := probeOne(ctx, url); err == nil && probed > 0 && probed < clipTrimSeconds {
					duration = probed
				}
			}
			results <- result{slot: slot, duration: duration}
		}(slot)
	}

	durations := make(map[string]float64, len(slots))
	for range slots {
		r := <-results
		durations[r.slot] = r.duration
	}
	return durations
}

// probeOne is a package variable so tests can substitute deterministic
// durations for the network+ffprobe path.
var probeOne = func(ctx context.Context, url string) (float64, error) {
	if err := media.CheckURL(ctx, url); err != nil {
		return 0, err
	}
	return media.ProbeDuration(ctx, url)
}

func estimateDuration(scripts *models.ScriptBundle, slot string) float64 {
	if scripts == nil {
		return 0
	}
	chars := len(scripts.Individual[slot])
	if chars == 0 {
		return 0
	}
	return float64(chars) / estimatedCharsPerS
}
