// Package models defines the value records passed between workflow steps.
package models

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Filter is the immutable 5-tuple input to a job.
type Filter struct {
	Country     string `json:"country"` // ISO-alpha-2
	Platform    string `json:"platform"`
	Genre       string `json:"genre"`
	ContentType string `json:"content_type"`
	NumMovies   int    `json:"num_movies"`
}

// Movie is produced by step 1 and read-only thereafter.
type Movie struct {
	ID             int      `json:"id"`
	Title          string   `json:"title"`
	Year           int      `json:"year"`
	Genres         []string `json:"genres"`
	Platform       string   `json:"platform"`
	IMDBScore      float64  `json:"imdb_score"`
	IMDBVotes      int      `json:"imdb_votes"`
	PosterURL      string   `json:"poster_url"`
	TrailerURL     string   `json:"trailer_url,omitempty"`
	RuntimeMinutes *int     `json:"runtime_minutes,omitempty"`
}

// ScriptBundle holds the intro and per-slot hook scripts.
//
// Intro-integration invariant: individual["movie1"] = intro + " " + hooks[0];
// individual["movieK"] = hooks[K-1] for K>1. Exactly N avatar videos result,
// never N+1.
type ScriptBundle struct {
	Intro      string            `json:"intro"`
	Hooks      []string          `json:"hooks"`
	Combined   string            `json:"combined"`
	Individual map[string]string `json:"individual"`
}

// Slot returns the canonical slot name for a 1-indexed movie position.
func Slot(k int) string {
	return "movie" + strconv.Itoa(k)
}

// AssetBundle is produced by step 3.
type AssetBundle struct {
	Posters     map[string]string `json:"posters"`
	Clips       map[string]string `json:"clips"`
	ScrollVideo *string           `json:"scroll_video,omitempty"`
}

// AvatarJobStatus is the terminal/non-terminal state of a HeyGen render.
type AvatarJobStatus string

const (
	AvatarStatusSubmitted  AvatarJobStatus = "submitted"
	AvatarStatusProcessing AvatarJobStatus = "processing"
	AvatarStatusCompleted  AvatarJobStatus = "completed"
	AvatarStatusFailed     AvatarJobStatus = "failed"
)

// AvatarJob tracks one HeyGen render, created per slot in step 4.
type AvatarJob struct {
	Slot              string          `json:"slot"`
	ExternalID        string          `json:"external_id"`
	Status            AvatarJobStatus `json:"status"`
	ResultURL         string          `json:"result_url,omitempty"`
	RetryCount        int             `json:"retry_count"`
	ScriptLengthChars int             `json:"script_length_chars"`
}

// Composition is the compositor's timeline document.
type Composition struct {
	Width        int                  `json:"width"`
	Height       int                  `json:"height"`
	FrameRate    int                  `json:"frame_rate"`
	TimelineType string               `json:"timeline_type"`
	OutputFormat string               `json:"output_format"`
	Elements     []CompositionElement `json:"elements"`
}

// CompositionElement is one item on the main or overlay track.
type CompositionElement struct {
	Track     string  `json:"track"` // "main" or "overlay"
	Type      string  `json:"type"`  // "image" | "video"
	Source    string  `json:"source,omitempty"`
	Slot      string  `json:"slot,omitempty"`
	Start     float64 `json:"start,omitempty"`
	Duration  float64 `json:"duration,omitempty"` // 0 = natural
	FadeIn    float64 `json:"fade_in,omitempty"`
	FadeOut   float64 `json:"fade_out,omitempty"`
	Trim      float64 `json:"trim,omitempty"`
	Y         float64 `json:"y,omitempty"`
	HeightPct float64 `json:"height_pct,omitempty"`
}

// ErrorEntry is a single recorded error in a JobRecord.
type ErrorEntry struct {
	Kind    string    `json:"kind"`
	Step    string    `json:"step"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// JobStatus is the JobRecord's terminal/running state.
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// JobRecord is owned exclusively by the orchestrator for the job's duration.
type JobRecord struct {
	JobID         string                   `json:"job_id"`
	WorkflowID    string                   `json:"workflow_id"`
	Filter        Filter                   `json:"filter"`
	Movies        []Movie                  `json:"movies,omitempty"`
	Scripts       *ScriptBundle            `json:"scripts,omitempty"`
	Assets        *AssetBundle             `json:"assets,omitempty"`
	AvatarJobs    map[string]*AvatarJob    `json:"avatar_jobs,omitempty"`
	AvatarURLs    map[string]string        `json:"avatar_urls,omitempty"`
	CompositionID string                   `json:"composition_id,omitempty"`
	StepTimings   map[string]time.Duration `json:"step_timings"`
	Errors        []ErrorEntry             `json:"errors"`
	StartedAt     time.Time                `json:"started_at"`
	Status        JobStatus                `json:"status"`
}

// NewJobRecord constructs a fresh running JobRecord for the given filter.
func NewJobRecord(filter Filter) *JobRecord {
	return &JobRecord{
		JobID:       uuid.NewString(),
		WorkflowID:  uuid.NewString(),
		Filter:      filter,
		StepTimings: make(map[string]time.Duration),
		StartedAt:   time.Now(),
		Status:      JobStatusRunning,
	}
}

// RecordError appends an error entry; callers decide fatal vs non-fatal.
func (j *JobRecord) RecordError(kind, step, message string) {
	j.Errors = append(j.Errors, ErrorEntry{Kind: kind, Step: step, Message: message, At: time.Now()})
}

// ProgressStatus is the lifecycle state of an emitted ProgressEvent.
type ProgressStatus string

const (
	ProgressStarted         ProgressStatus = "started"
	ProgressCompleted       ProgressStatus = "completed"
	ProgressFailed          ProgressStatus = "failed"
	ProgressCreatomateReady ProgressStatus = "creatomate_ready"
)

// ProgressEvent is emitted, never stored, to the progress webhook.
type ProgressEvent struct {
	JobID      string                 `json:"job_id"`
	StepNumber int                    `json:"step_number"` // 0..8
	StepName   string                 `json:"step_name"`
	Status     ProgressStatus         `json:"status"`
	Duration   *float64               `json:"duration,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Sequence   int64                  `json:"sequence"`
	Timestamp  float64                `json:"timestamp"`
}
