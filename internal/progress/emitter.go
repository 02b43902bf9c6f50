// Package progress fires fire-and-forget step-update webhooks and writes
// the per-job structured log.
package progress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/streamgank/workflow/internal/models"
)

const webhookTimeout = 5 * time.Second

// Emitter posts ProgressEvents to the job-tracking frontend's webhook
// endpoint. Fire-and-forget and non-fatal: a webhook failure only logs a
// warning, never fails the job.
type Emitter struct {
	baseURL    string
	jobID      string
	httpClient *http.Client
	sequence   int64
}

// NewEmitter builds an Emitter. baseURL may be empty, in which case every
// emission is a no-op.
func NewEmitter(baseURL, jobID string) *Emitter {
	return &Emitter{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		jobID:      jobID,
		httpClient: &http.Client{Timeout: webhookTimeout},
	}
}

// stepUpdatePayload is the step-update body, including the informational
// step_key/workflow_stage fields sent purely for downstream log
// correlation.
type stepUpdatePayload struct {
	JobID          string                 `json:"job_id"`
	StepNumber     int                    `json:"step_number"`
	StepName       string                 `json:"step_name"`
	Status         string                 `json:"status"`
	Duration       *float64               `json:"duration,omitempty"`
	Details        map[string]interface{} `json:"details,omitempty"`
	Timestamp      float64                `json:"timestamp"`
	StepKey        string                 `json:"step_key"`
	Sequence       int64                  `json:"sequence"`
	WorkflowStage  string                 `json:"workflow_stage"`
}

// Emit fires a step-update webhook. Failures are logged and swallowed —
// progress emission is fire-and-forget and never fails the job.
func (e *Emitter) Emit(ctx context.Context, stepNumber int, stepName string, status models.ProgressStatus, duration *float64, details map[string]interface{}) {
	if e.baseURL == "" || e.jobID == "" {
		return
	}

	seq := atomic.AddInt64(&e.sequence, 1)
	now := time.Now()

	payload := stepUpdatePayload{
		JobID:         e.jobID,
		StepNumber:    stepNumber,
		StepName:      stepName,
		Status:        string(status),
		Duration:      duration,
		Details:       details,
		Timestamp:     float64(now.UnixNano()) / 1e9,
		StepKey:       fmt.Sprintf("%s_%d_%s_%d", e.jobID, stepNumber, status, now.UnixMilli()),
		Sequence:      seq,
		WorkflowStage: fmt.Sprintf("step_%d_%s", stepNumber, status),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[progress] failed to marshal webhook payload: %v", err)
		return
	}

	url := e.baseURL + "/api/webhooks/step-update"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		log.Printf("[progress] failed to build webhook request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		log.Printf("[progress] webhook failed for step %d: %v", stepNumber, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[progress] webhook returned status %d for step %d", resp.StatusCode, stepNumber)
	}
}

// Started emits the workflow-started event (step 0).
func (e *Emitter) Started(ctx context.Context, totalSteps int) {
	e.Emit(ctx, 0, "Workflow Started", models.ProgressStarted, nil, map[string]interface{}{"total_steps": totalSteps})
}

// StepCompleted emits a per-step completion event.
func (e *Emitter) StepCompleted(ctx context.Context, stepNumber int, stepName string, duration time.Duration, details map[string]interface{}) {
	d := duration.Seconds()
	e.Emit(ctx, stepNumber, stepName, models.ProgressCompleted, &d, details)
}

// StepFailed emits a per-step failure event.
func (e *Emitter) StepFailed(ctx context.Context, stepNumber int, stepName, errMsg string) {
	e.Emit(ctx, stepNumber, stepName, models.ProgressFailed, nil, map[string]interface{}{"error": errMsg})
}

// CreatomateReady emits the special immediate-monitoring-trigger event for
// step 7.
func (e *Emitter) CreatomateReady(ctx context.Context, renderID string, stepDuration time.Duration) {
	d := stepDuration.Seconds()
	e.Emit(ctx, 7, "Creatomate Assembly", models.ProgressCreatomateReady, &d, map[string]interface{}{
		"creatomate_id":       renderID,
		"immediate_monitoring": true,
		"ready_for_rendering": true,
	})
}

// Completed emits the workflow-completed event (step 8).
func (e *Emitter) Completed(ctx context.Context, totalDuration time.Duration, renderID string) {
	d := totalDuration.Seconds()
	e.Emit(ctx, 8, "Workflow Completed", models.ProgressCompleted, &d, map[string]interface{}{
		"creatomate_id":     renderID,
		"workflow_complete": true,
	})
}

// Failed emits the workflow-failed event.
func (e *Emitter) Failed(ctx context.Context, stepNumber int, errMsg string) {
	e.Emit(ctx, stepNumber, "Workflow Failed", models.ProgressFailed, nil, map[string]interface{}{"error": errMsg})
}

// Ping is a pre-flight check that verifies the webhook endpoint is
// reachable before the job starts — a
// misconfigured WEBHOOK_BASE_URL should surface immediately rather than
// silently swallowing every in-flight emission for the job's duration.
func (e *Emitter) Ping(ctx context.Context) error {
	if e.baseURL == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, "HEAD", e.baseURL+"/api/webhooks/step-update", nil)
	if err != nil {
		return fmt.Errorf("failed to build webhook ping request: %w", err)
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()
	return nil
}
