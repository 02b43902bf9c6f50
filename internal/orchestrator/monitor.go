package orchestrator

import (
	"context"
	"log"

	"github.com/streamgank/workflow/internal/models"
	"github.com/streamgank/workflow/internal/progress"
)

// RenderPoller is the compositor's status-poll surface.
type RenderPoller interface {
	PollUntilComplete(ctx context.Context, renderID string) (string, error)
}

// MonitorRender tracks a submitted render to terminal status after the
// pipeline has already returned. It blocks until the render reaches a
// terminal status, the poll fails, or ctx is cancelled.
func MonitorRender(ctx context.Context, poller RenderPoller, emitter *progress.Emitter, renderID string) {
	videoURL, err := poller.PollUntilComplete(ctx, renderID)
	if err != nil {
		log.Printf("[monitor] render %s failed: %v", renderID, err)
		emitter.Emit(ctx, 8, "Creatomate Rendering", models.ProgressFailed, nil, map[string]interface{}{
			"creatomate_id": renderID,
			"event":         "render_failed",
			"error":         err.Error(),
		})
		return
	}

	log.Printf("[monitor] render %s completed: %s", renderID, videoURL)
	emitter.Emit(ctx, 8, "Creatomate Rendering", models.ProgressCompleted, nil, map[string]interface{}{
		"creatomate_id": renderID,
		"event":         "render_completed",
		"video_url":     videoURL,
	})
}
