// Package creatomate submits the assembled composition to the video
// compositor and polls for the rendered output.
package creatomate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/streamgank/workflow/internal/models"
)

const baseURL = "https://api.creatomate.com/v1"

// RenderBudget bounds a single render's status polling.
const RenderBudget = 15 * time.Minute

const pollInterval = 10 * time.Second

// Client wraps Creatomate's render REST API with a hand-rolled
// *http.Client: submit a composition, then poll the render by id.
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

// renderRequest carries the composition as Creatomate's "source" document.
type renderRequest struct {
	Source source `json:"source"`
}

type source struct {
	OutputFormat string    `json:"output_format"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	FrameRate    int       `json:"frame_rate"`
	Elements     []element `json:"elements"`
}

type element struct {
	Track    string  `json:"track"`
	Type     string  `json:"type"`
	Source   string  `json:"source,omitempty"`
	Time     float64 `json:"time,omitempty"`
	Duration float64 `json:"duration,omitempty"`
	FadeIn   float64 `json:"animation_in,omitempty"`
	FadeOut  float64 `json:"animation_out,omitempty"`
	Trim     float64 `json:"trim_start,omitempty"`
	Y        string  `json:"y,omitempty"`
	Height   string  `json:"height,omitempty"`
}

type renderResponse []struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	URL    string `json:"url"`
}

// Submit posts a composition and returns the render id Creatomate assigns.
func (c *Client) Submit(ctx context.Context, comp models.Composition) (string, error) {
	elements := make([]element, 0, len(comp.Elements))
	for _, e := range comp.Elements {
		elements = append(elements, element{
			Track:    e.Track,
			Type:     e.Type,
			Source:   e.Source,
			Time:     e.Start,
			Duration: e.Duration,
			FadeIn:   e.FadeIn,
			FadeOut:  e.FadeOut,
			Trim:     e.Trim,
			Y:        percent(e.Y),
			Height:   percent(e.HeightPct),
		})
	}

	reqBody := renderRequest{Source: source{
		OutputFormat: comp.OutputFormat,
		Width:        comp.Width,
		Height:       comp.Height,
		FrameRate:    comp.FrameRate,
		Elements:     elements,
	}}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal creatomate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", baseURL+"/renders", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create creatomate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("creatomate submit request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read creatomate response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("creatomate submit returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed renderResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse creatomate submit response: %w (body: %s)", err, string(body))
	}
	if len(parsed) == 0 || parsed[0].ID == "" {
		return "", fmt.Errorf("creatomate submit response carries no render id: %s", string(body))
	}

	log.Printf("[creatomate] submitted composition -> render_id=%s", parsed[0].ID)
	return parsed[0].ID, nil
}

// percent formats a 0-100 float as Creatomate's "NN%" string field, or the
// empty string when the value was never set (zero value means "unset" for
// these optional overlay-positioning fields).
func percent(v float64) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%g%%", v)
}

type statusResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	URL    string `json:"url"`
	ErrMsg string `json:"error_message"`
}

func (c *Client) pollOnce(ctx context.Context, renderID string) (string, string, string, error) {
	url := fmt.Sprintf("%s/renders/%s", baseURL, renderID)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to create creatomate poll request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", "", "", fmt.Errorf("creatomate poll request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to read creatomate poll response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", "", "", fmt.Errorf("creatomate poll returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed statusResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", "", "", fmt.Errorf("failed to parse creatomate poll response: %w (body: %s)", err, string(body))
	}
	return parsed.Status, parsed.URL, parsed.ErrMsg, nil
}

// IsTerminalFailure reports whether a render status is a terminal failure.
func IsTerminalFailure(status string) bool {
	return status == "failed"
}

// IsCompleted reports whether a render status is the terminal success state.
func IsCompleted(status string) bool {
	return status == "succeeded"
}

// PollUntilComplete long-polls a submitted render until it completes,
// fails, is cancelled, or the render budget (15 min) elapses.
func (c *Client) PollUntilComplete(ctx context.Context, renderID string) (string, error) {
	deadline := time.Now().Add(RenderBudget)

	for {
		status, outputURL, errMsg, err := c.pollOnce(ctx, renderID)
		if err != nil {
			return "", fmt.Errorf("creatomate poll failed for %s: %w", renderID, err)
		}

		if IsCompleted(status) {
			if outputURL == "" {
				return "", fmt.Errorf("creatomate render %s completed with no url", renderID)
			}
			return outputURL, nil
		}
		if IsTerminalFailure(status) {
			return "", fmt.Errorf("creatomate render %s failed: %s", renderID, errMsg)
		}

		if time.Now().After(deadline) {
			return "", fmt.Errorf("creatomate render %s timed out after %v (status=%q)", renderID, RenderBudget, status)
		}

		log.Printf("[creatomate] render=%s status=%s, next poll in %v", renderID, status, pollInterval)
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("creatomate poll for %s cancelled: %w", renderID, ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}
