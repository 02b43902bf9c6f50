package orchestrator

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/streamgank/workflow/internal/catalogmap"
	"github.com/streamgank/workflow/internal/models"
)

// renderAvatars runs step 4: submit one HeyGen render per slot in
// parallel, then long-poll each with adaptive intervals until every slot
// reaches a terminal state. One slot's failure never cancels the others —
// all outcomes are collected first, then the step fails if any slot failed.
func (r *jobRun) renderAvatars(ctx context.Context) error {
	start := r.stepStart(ctx, 4, "HeyGen Video Creation")

	templateID := r.o.cfg.HeyGenTemplateOverride
	if templateID == "" {
		templateID = catalogmap.HeyGenTemplateID(r.genreToken)
	}

	slots := sortedSlotNames(r.rec.Scripts.Individual)
	sem := make(chan struct{}, workerBound(len(slots)))

	jobs := make(map[string]*models.AvatarJob, len(slots))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, slot := range slots {
		script := r.rec.Scripts.Individual[slot]
		job := &models.AvatarJob{
			Slot:              slot,
			Status:            models.AvatarStatusSubmitted,
			ScriptLengthChars: len(script),
		}
		mu.Lock()
		jobs[slot] = job
		mu.Unlock()

		wg.Add(1)
		go func(slot, script string, job *models.AvatarJob) {
			defer wg.Done()
			err := r.withSlot(ctx, sem, func() error {
				return r.renderOneAvatar(ctx, templateID, slot, script, job, &mu)
			})
			if err != nil {
				mu.Lock()
				job.Status = models.AvatarStatusFailed
				mu.Unlock()
				log.Printf("[orchestrator] avatar render failed for %s: %v", slot, err)
			}
		}(slot, script, job)
	}

	wg.Wait()

	r.rec.AvatarJobs = jobs

	var failed []string
	for _, slot := range slots {
		if jobs[slot].Status != models.AvatarStatusCompleted {
			failed = append(failed, slot)
		}
	}
	if len(failed) > 0 {
		return models.NewWorkflowError(models.ErrAvatarRenderFailed, "avatar_rendering",
			fmt.Errorf("%d of %d avatar renders did not complete: %s", len(failed), len(slots), strings.Join(failed, ", ")))
	}

	r.stepDone(ctx, 4, "HeyGen Video Creation", "avatar_rendering", start, map[string]interface{}{
		"video_count": len(slots),
		"template_id": templateID,
	})
	return nil
}

// renderOneAvatar drives a single slot through the AvatarJob state machine:
// submitted -> processing -> completed | failed.
func (r *jobRun) renderOneAvatar(ctx context.Context, templateID, slot, script string, job *models.AvatarJob, mu *sync.Mutex) error {
	title := fmt.Sprintf("%s_%s", r.rec.JobID, slot)

	externalID, err := r.o.avatar.Submit(ctx, templateID, title, script)
	if err != nil {
		return fmt.Errorf("submit failed: %w", err)
	}

	mu.Lock()
	job.ExternalID = externalID
	job.Status = models.AvatarStatusProcessing
	mu.Unlock()

	r.logger.Info(fmt.Sprintf("HeyGen render submitted for %s", slot), map[string]interface{}{
		"external_id":  externalID,
		"script_chars": len(script),
	})

	resultURL, err := r.o.avatar.PollUntilComplete(ctx, externalID, len(script))
	if err != nil {
		return fmt.Errorf("poll failed: %w", err)
	}

	mu.Lock()
	job.Status = models.AvatarStatusCompleted
	job.ResultURL = resultURL
	mu.Unlock()
	return nil
}
