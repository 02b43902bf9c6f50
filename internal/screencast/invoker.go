// Package screencast drives a headless browser across the public catalog
// page and encodes the capture into the scrolling background-video asset.
package screencast

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// CaptureBudget bounds a single scroll-capture run.
const CaptureBudget = 90 * time.Second

const (
	viewportWidth  = 390
	viewportHeight = 844

	outputWidth  = 1080
	outputHeight = 1920

	// 30 frames at 200ms gives the 6-second capture window.
	frameInterval = 200 * time.Millisecond
	scrollSteps   = 30
)

// Capture launches a headless Chromium instance via go-rod, navigates to
// the catalog URL, scrolls it incrementally while saving a PNG per step
// into workDir, then shells out to ffmpeg to encode the frames into an MP4.
func Capture(ctx context.Context, catalogURL, workDir, outputPath string) error {
	ctx, cancel := context.WithTimeout(ctx, CaptureBudget)
	defer cancel()

	framesDir := filepath.Join(workDir, "screencast_frames")
	if err := os.MkdirAll(framesDir, 0o755); err != nil {
		return fmt.Errorf("failed to create screencast frames dir: %w", err)
	}

	browserURL, err := launcher.New().
		NoSandbox(true).
		Headless(true).
		Set("disable-gpu", "").
		Set("disable-dev-shm-usage", "").
		Launch()
	if err != nil {
		return fmt.Errorf("failed to launch headless browser: %w", err)
	}

	browser := rod.New().ControlURL(browserURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("failed to connect to headless browser: %w", err)
	}
	defer browser.Close()

	page, err := browser.Page(proto.TargetCreateTarget{URL: catalogURL})
	if err != nil {
		return fmt.Errorf("failed to open catalog page %s: %w", catalogURL, err)
	}
	defer page.Close()

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  viewportWidth,
		Height: viewportHeight,
	}); err != nil {
		return fmt.Errorf("failed to set screencast viewport: %w", err)
	}

	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("catalog page failed to load: %w", err)
	}

	scrollHeight, err := scrollableHeight(page)
	if err != nil {
		return fmt.Errorf("failed to measure scroll height: %w", err)
	}

	if err := captureScrollFrames(page, framesDir, scrollHeight); err != nil {
		return err
	}

	return encodeFrames(ctx, framesDir, outputPath)
}

func scrollableHeight(page *rod.Page) (int, error) {
	result, err := page.Eval(`() => document.body.scrollHeight - window.innerHeight`)
	if err != nil {
		return 0, err
	}
	h := result.Value.Int()
	if h < 0 {
		h = 0
	}
	return h, nil
}

func captureScrollFrames(page *rod.Page, framesDir string, scrollHeight int) error {
	for i := 0; i < scrollSteps; i++ {
		y := scrollHeight * i / (scrollSteps - 1)
		if _, err := page.Eval(fmt.Sprintf(`() => window.scrollTo(0, %d)`, y)); err != nil {
			return fmt.Errorf("failed to scroll to offset %d: %w", y, err)
		}

		time.Sleep(frameInterval)

		img, err := page.Screenshot(false, nil)
		if err != nil {
			return fmt.Errorf("failed to capture frame %d: %w", i, err)
		}

		framePath := filepath.Join(framesDir, fmt.Sprintf("frame_%03d.png", i))
		if err := os.WriteFile(framePath, img, 0o644); err != nil {
			return fmt.Errorf("failed to write frame %d: %w", i, err)
		}
	}
	return nil
}

// encodeFrames shells out to ffmpeg to join the captured PNG sequence into
// a vertical MP4.
func encodeFrames(ctx context.Context, framesDir, outputPath string) error {
	framerate := fmt.Sprintf("%.2f", 1/frameInterval.Seconds())
	args := []string{
		"-framerate", framerate,
		"-i", filepath.Join(framesDir, "frame_%03d.png"),
		"-vf", fmt.Sprintf("scale=%d:%d", outputWidth, outputHeight),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-y",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg screencast encode failed: %w", err)
	}
	return nil
}
