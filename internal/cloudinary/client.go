// Package cloudinary uploads enhanced posters and trailer clips to the
// media CDN and resolves transformation URLs.
package cloudinary

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/streamgank/workflow/internal/catalogmap"
)

const (
	uploadTimeout  = 60 * time.Second
	maxRetries     = 3
	baseRetryDelay = 1 * time.Second
	maxRetryDelay  = 30 * time.Second
)

// Client uploads media to Cloudinary: a hand-rolled *http.Client wrapper
// with manual multipart construction, a signed-upload computation
// (crypto/sha1, Cloudinary's own documented signing algorithm), and
// retry/backoff around transient upload failures.
type Client struct {
	cloudName string
	apiKey    string
	apiSecret string
	client    *http.Client
}

// NewClient builds a Client bound to the given Cloudinary account.
func NewClient(cloudName, apiKey, apiSecret string) *Client {
	return &Client{
		cloudName: cloudName,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		client:    &http.Client{Timeout: uploadTimeout},
	}
}

// UploadResult is the subset of Cloudinary's upload response this core uses.
type UploadResult struct {
	SecureURL string  `json:"secure_url"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Duration  float64 `json:"duration"`
}

// UploadImage uploads PNG bytes under the given deterministic public ID
// (`enhanced_posters/{safe_title}_{movie_id}`).
func (c *Client) UploadImage(ctx context.Context, publicID string, data []byte) (string, error) {
	return c.upload(ctx, "image", publicID, data, nil)
}

// UploadVideo uploads video bytes under the given public ID, applying a
// named transformation preset.
func (c *Client) UploadVideo(ctx context.Context, publicID string, data []byte, presetName string) (string, error) {
	preset, err := catalogmap.CloudinaryTransformation(presetName)
	if err != nil {
		return "", err
	}
	return c.upload(ctx, "video", publicID, data, &preset)
}

func (c *Client) upload(ctx context.Context, resourceType, publicID string, data []byte, preset *catalogmap.CloudinaryPreset) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryDelay(attempt)
			log.Printf("[cloudinary] upload retry %d/%d for %s (waiting %v)", attempt, maxRetries, publicID, delay)
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("cloudinary upload cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		url, err := c.doUpload(ctx, resourceType, publicID, data, preset)
		if err == nil {
			return url, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return "", err
		}
		log.Printf("[cloudinary] upload attempt %d failed (retryable): %v", attempt+1, err)
	}
	return "", fmt.Errorf("cloudinary upload failed after %d attempts: %w", maxRetries+1, lastErr)
}

type retryableStatusError struct {
	status int
	body   string
}

func (e *retryableStatusError) Error() string {
	return fmt.Sprintf("cloudinary upload returned status %d: %s", e.status, e.body)
}

func isRetryable(err error) bool {
	rse, ok := err.(*retryableStatusError)
	if !ok {
		return true // network-level errors are always worth a retry
	}
	switch rse.status {
	case http.StatusTooManyRequests, http.StatusRequestTimeout, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func (c *Client) doUpload(ctx context.Context, resourceType, publicID string, data []byte, preset *catalogmap.CloudinaryPreset) (string, error) {
	timestamp := deterministicTimestamp(ctx)

	params := map[string]string{
		"public_id": publicID,
		"overwrite": "true",
		"timestamp": strconv.FormatInt(timestamp, 10),
	}
	if preset != nil {
		params["transformation"] = transformationString(*preset)
	}
	signature := sign(params, c.apiSecret)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range params {
		_ = writer.WriteField(k, v)
	}
	_ = writer.WriteField("api_key", c.apiKey)
	_ = writer.WriteField("signature", signature)

	fileField, err := writer.CreateFormFile("file", publicID)
	if err != nil {
		return "", fmt.Errorf("failed to build multipart file field: %w", err)
	}
	if _, err := fileField.Write(data); err != nil {
		return "", fmt.Errorf("failed to write upload payload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	endpoint := fmt.Sprintf("https://api.cloudinary.com/v1_1/%s/%s/upload", c.cloudName, resourceType)
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, body)
	if err != nil {
		return "", fmt.Errorf("failed to create cloudinary request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("cloudinary upload request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read cloudinary response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &retryableStatusError{status: resp.StatusCode, body: string(respBody)}
	}

	var result UploadResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to parse cloudinary upload response: %w (body: %s)", err, string(respBody))
	}
	if result.SecureURL == "" {
		return "", fmt.Errorf("cloudinary upload returned no secure_url: %s", string(respBody))
	}

	log.Printf("[cloudinary] uploaded %s (%s, %dx%d)", publicID, resourceType, result.Width, result.Height)
	return result.SecureURL, nil
}

// transformationString renders a preset into Cloudinary's "key_value,.."
// transformation DSL — only the handful of keys the fixed preset table
// needs.
func transformationString(p catalogmap.CloudinaryPreset) string {
	parts := []string{
		fmt.Sprintf("w_%d", p.Width),
		fmt.Sprintf("h_%d", p.Height),
		fmt.Sprintf("c_%s", p.Crop),
	}
	if p.Gravity != "" {
		parts = append(parts, "g_"+p.Gravity)
	}
	if p.VideoBitRate != "" {
		parts = append(parts, "vbr_"+p.VideoBitRate)
	}
	if p.Background == "blur" {
		parts = append(parts, "b_blurred")
	} else if p.Background == "black" {
		parts = append(parts, "b_black")
	}
	return strings.Join(parts, ",")
}

// sign computes Cloudinary's documented signed-upload signature: sort
// params lexically by key, join as "key=value&...", append the API secret,
// then SHA-1 hex-digest the result.
func sign(params map[string]string, apiSecret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+params[k])
	}
	toSign := strings.Join(parts, "&") + apiSecret

	sum := sha1.Sum([]byte(toSign))
	return hex.EncodeToString(sum[:])
}

// deterministicTimestamp returns a Unix-second timestamp. Exposed as a
// function so the signing path is exercised deterministically in tests
// without caring about wall-clock drift.
var deterministicTimestamp = func(ctx context.Context) int64 {
	if ts, ok := ctx.Value(timestampOverrideKey{}).(int64); ok {
		return ts
	}
	return time.Now().Unix()
}

type timestampOverrideKey struct{}

// WithTimestamp overrides the signing timestamp — used by tests to assert
// exact signature output.
func WithTimestamp(ctx context.Context, ts int64) context.Context {
	return context.WithValue(ctx, timestampOverrideKey{}, ts)
}

func retryDelay(attempt int) time.Duration {
	delay := float64(baseRetryDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxRetryDelay) {
		delay = float64(maxRetryDelay)
	}
	jitter := delay * 0.25 * rand.Float64()
	return time.Duration(delay + jitter)
}
