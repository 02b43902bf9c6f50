// Package vizard submits trailers for AI highlight extraction and polls for
// the resulting clip.
package vizard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

const baseURL = "https://elb-api.vizard.ai/hvizard-server-front/open-api/v1"

// PollBudget bounds clip extraction to 20 minutes per movie.
const PollBudget = 20 * time.Minute

const pollInterval = 15 * time.Second

// Client wraps Vizard's submit/poll REST API with a hand-rolled
// *http.Client: submit a project, then poll it by id.
type Client struct {
	apiKey     string
	httpClient *http.Client
}

// NewClient builds a Client bound to the given API key.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// submitRequest carries max_clip_number, ratio_of_clip (1 = 9:16),
// prefer_length (bucket [1] = 15-20s), remove_silence, highlight_switch.
type submitRequest struct {
	VideoURL        string `json:"videoUrl"`
	MaxClipNumber   int    `json:"maxClipNumber"`
	RatioOfClip     int    `json:"ratioOfClip"`
	PreferLength    []int  `json:"preferLength"`
	RemoveSilence   int    `json:"removeSilenceSwitch"`
	HighlightSwitch int    `json:"highlightSwitch"`
	Lang            string `json:"lang"`
}

type submitResponse struct {
	Code    int    `json:"code"`
	Message string `json:"errMsg"`
	Data    struct {
		ProjectID string `json:"projectId"`
	} `json:"data"`
}

// Submit posts a trailer URL for highlight extraction with the
// single-clip, 9:16, 15-20s, silence-removed, keyword-highlighted
// configuration.
func (c *Client) Submit(ctx context.Context, trailerURL string) (string, error) {
	reqBody := submitRequest{
		VideoURL:        trailerURL,
		MaxClipNumber:   1,
		RatioOfClip:     1, // 9:16
		PreferLength:    []int{1}, // 15-20s bucket
		RemoveSilence:   1,
		HighlightSwitch: 1,
		Lang:            "auto",
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal vizard request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", baseURL+"/project/create", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create vizard request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("VIZARDAI_API_KEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("vizard submit request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read vizard response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("vizard submit returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed submitResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse vizard submit response: %w (body: %s)", err, string(body))
	}
	if parsed.Data.ProjectID == "" {
		return "", fmt.Errorf("vizard submit returned no projectId (code=%d msg=%s)", parsed.Code, parsed.Message)
	}

	log.Printf("[vizard] submitted trailer=%s -> project_id=%s", trailerURL, parsed.Data.ProjectID)
	return parsed.Data.ProjectID, nil
}

type statusResponse struct {
	Code int `json:"code"`
	Data struct {
		Status int `json:"status"` // 0 processing, 1 success, 2 failed (vizard's own coding)
		Clips  []struct {
			VideoURL string `json:"videoUrl"`
		} `json:"videos"`
	} `json:"data"`
}

const (
	vizardStatusProcessing = 0
	vizardStatusSuccess    = 1
	vizardStatusFailed     = 2
)

// pollOnce fetches the current project state and first clip URL, if ready.
func (c *Client) pollOnce(ctx context.Context, projectID string) (int, string, error) {
	url := fmt.Sprintf("%s/project/query/%s", baseURL, projectID)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return 0, "", fmt.Errorf("failed to create vizard poll request: %w", err)
	}
	req.Header.Set("VIZARDAI_API_KEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("vizard poll request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", fmt.Errorf("failed to read vizard poll response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, "", fmt.Errorf("vizard poll returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed statusResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, "", fmt.Errorf("failed to parse vizard poll response: %w (body: %s)", err, string(body))
	}

	var clipURL string
	if len(parsed.Data.Clips) > 0 {
		clipURL = parsed.Data.Clips[0].VideoURL
	}
	return parsed.Data.Status, clipURL, nil
}

// PollUntilReady long-polls a submitted project until the first clip is
// ready, the project fails, or the per-movie budget (20 min) expires.
func (c *Client) PollUntilReady(ctx context.Context, projectID string) (string, error) {
	deadline := time.Now().Add(PollBudget)

	for {
		status, clipURL, err := c.pollOnce(ctx, projectID)
		if err != nil {
			return "", fmt.Errorf("vizard poll failed for project %s: %w", projectID, err)
		}

		switch status {
		case vizardStatusSuccess:
			if clipURL == "" {
				return "", fmt.Errorf("vizard project %s succeeded with no clip URL", projectID)
			}
			return clipURL, nil
		case vizardStatusFailed:
			return "", fmt.Errorf("vizard project %s failed highlight extraction", projectID)
		}

		if time.Now().After(deadline) {
			return "", fmt.Errorf("vizard project %s timed out after %v", projectID, PollBudget)
		}

		log.Printf("[vizard] project=%s still processing, next poll in %v", projectID, pollInterval)
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("vizard poll for %s cancelled: %w", projectID, ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}
