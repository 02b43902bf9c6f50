package media

import (
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"time"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"

	"github.com/streamgank/workflow/internal/catalogmap"
	"github.com/streamgank/workflow/internal/models"
)

// canvas dimensions match the vertical_portrait_fill preset.
const (
	canvasWidth  = 1080
	canvasHeight = 1920

	posterWidth  = 760
	posterHeight = 1140

	panelHeight = 260
)

// BuildEnhancedPoster composites the layered poster image: a blurred,
// darkened background crop of the poster itself, the poster centered and
// drop-shadowed, a bottom metadata panel with title and score, and a
// platform badge.
func BuildEnhancedPoster(ctx context.Context, movie models.Movie) ([]byte, error) {
	src, err := fetchImage(ctx, movie.PosterURL)
	if err != nil {
		// Poster download failed — degrade to a solid-color card with the
		// title and metadata only rather than failing the slot.
		return buildFallbackCard(movie)
	}

	background := buildBlurredBackground(src)

	dc := gg.NewContext(canvasWidth, canvasHeight)
	dc.DrawImage(background, 0, 0)

	poster := imaging.Fill(src, posterWidth, posterHeight, imaging.Center, imaging.Lanczos)
	posterX := (canvasWidth - posterWidth) / 2
	posterY := (canvasHeight - posterHeight - panelHeight) / 2

	drawDropShadow(dc, posterX, posterY, posterWidth, posterHeight)
	dc.DrawImage(poster, posterX, posterY)

	drawMetadataPanel(dc, movie)
	drawPlatformBadge(dc, movie.Platform)

	png, err := encodePNG(dc.Image())
	if err != nil {
		return nil, fmt.Errorf("failed to encode poster for %s: %w", movie.Title, err)
	}
	return png, nil
}

func fetchImage(ctx context.Context, rawURL string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("poster fetch returned status %d", resp.StatusCode)
	}
	img, _, err := image.Decode(resp.Body)
	return img, err
}

// buildBlurredBackground fills the full canvas with a darkened, heavily
// blurred crop of the poster, the same "ambient" background treatment
// streaming apps use behind a portrait artwork.
func buildBlurredBackground(src image.Image) image.Image {
	bg := imaging.Fill(src, canvasWidth, canvasHeight, imaging.Center, imaging.Lanczos)
	bg = imaging.Blur(bg, 28)
	bg = imaging.AdjustBrightness(bg, -35)
	return bg
}

// drawDropShadow paints a soft offset shadow behind the poster's bounds.
func drawDropShadow(dc *gg.Context, x, y, w, h int) {
	dc.Push()
	dc.SetColor(color.RGBA{0, 0, 0, 140})
	shadowOffset := 14.0
	dc.DrawRoundedRectangle(float64(x)+shadowOffset, float64(y)+shadowOffset, float64(w), float64(h), 18)
	dc.Fill()
	dc.Pop()
}

// drawMetadataPanel draws the bottom-of-canvas panel: title, year, and
// IMDb score.
func drawMetadataPanel(dc *gg.Context, movie models.Movie) {
	panelY := float64(canvasHeight - panelHeight)

	dc.Push()
	dc.SetColor(color.RGBA{0, 0, 0, 200})
	dc.DrawRectangle(0, panelY, canvasWidth, panelHeight)
	dc.Fill()
	dc.Pop()

	dc.SetColor(color.White)
	if err := dc.LoadFontFace(defaultFontPath(), 56); err == nil {
		dc.DrawStringWrapped(movie.Title, canvasWidth/2, panelY+70, 0.5, 0.5, canvasWidth-80, 1.2, gg.AlignCenter)
	}

	subtitle := fmt.Sprintf("%d  •  IMDb %.1f", movie.Year, movie.IMDBScore)
	dc.SetColor(color.RGBA{255, 215, 0, 255})
	if err := dc.LoadFontFace(defaultFontPath(), 34); err == nil {
		dc.DrawStringAnchored(subtitle, canvasWidth/2, panelY+170, 0.5, 0.5)
	}
}

// drawPlatformBadge paints a small rounded badge in the platform's brand
// color in the canvas's top-right corner.
func drawPlatformBadge(dc *gg.Context, platformToken string) {
	hexColor, ok := catalogmap.PlatformBadgeColors[platformToken]
	if !ok {
		return
	}

	dc.Push()
	dc.SetHexColor(hexColor)
	dc.DrawRoundedRectangle(canvasWidth-220, 60, 160, 64, 16)
	dc.Fill()
	dc.Pop()
}

// buildFallbackCard renders the metadata-only card used when the poster
// artwork cannot be downloaded: a flat dark canvas with the same bottom
// panel and platform badge the full composite carries.
func buildFallbackCard(movie models.Movie) ([]byte, error) {
	dc := gg.NewContext(canvasWidth, canvasHeight)
	dc.SetColor(color.RGBA{24, 24, 32, 255})
	dc.Clear()

	dc.SetColor(color.White)
	if err := dc.LoadFontFace(defaultFontPath(), 72); err == nil {
		dc.DrawStringWrapped(movie.Title, canvasWidth/2, canvasHeight/2-panelHeight, 0.5, 0.5, canvasWidth-120, 1.3, gg.AlignCenter)
	}

	drawMetadataPanel(dc, movie)
	drawPlatformBadge(dc, movie.Platform)

	png, err := encodePNG(dc.Image())
	if err != nil {
		return nil, fmt.Errorf("failed to encode fallback card for %s: %w", movie.Title, err)
	}
	return png, nil
}

// defaultFontPath points at a system font available in the container image
// this pipeline runs in; callers with no system font installed simply get
// a poster with no burned-in text.
func defaultFontPath() string {
	return "/usr/share/fonts/truetype/dejavu/DejaVuSans-Bold.ttf"
}

func encodePNG(img image.Image) ([]byte, error) {
	pr, pw := io.Pipe()
	errCh := make(chan error, 1)
	go func() {
		errCh <- imaging.Encode(pw, img, imaging.PNG)
		pw.Close()
	}()
	data, err := io.ReadAll(pr)
	if err != nil {
		return nil, err
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return data, nil
}
