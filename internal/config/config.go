// Package config loads and validates the orchestrator's environment.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Mode selects how the job-result cache behaves.
type Mode string

const (
	ModeLocal Mode = "local" // reads cached step outputs from disk
	ModeDev   Mode = "dev"   // saves step outputs for later reuse
	ModeProd  Mode = "prod"  // neither reads nor writes the cache
)

// Config holds every environment-derived setting the orchestrator needs.
type Config struct {
	// Required external service credentials. The catalog store is Supabase
	// Postgres, so SupabaseURL doubles as the lib/pq connection string;
	// there is no separate DATABASE_URL.
	OpenAIKey        string
	HeyGenAPIKey     string
	VizardAPIKey     string
	CreatomateAPIKey string
	CloudinaryCloud  string
	CloudinaryAPIKey string
	CloudinarySecret string
	SupabaseURL      string
	SupabaseKey      string

	// Optional.
	WebhookBaseURL string
	AppEnv         Mode
	JobID          string

	// Behavior toggles.
	StrictMode           bool   // escalates HookTimingUnmet to fatal
	PosterTimingStrategy string // "heygen_last3s" (default) | "between_clips"

	// Static composition assets: intro/outro cards and the brand
	// banner overlay, hosted on the media CDN.
	IntroImageURL  string
	OutroImageURL  string
	BrandBannerURL string

	// Health server.
	HealthPort string

	// Per-job structured log files are written under this directory
	// (logs/workflow_{workflow_id}.log).
	LogsDir string

	// Temp workspace root for per-job scoped directories.
	WorkspaceRoot string

	// Job parameters: one job per process invocation, read from the
	// environment.
	FilterCountry         string
	FilterPlatform        string
	FilterGenre           string
	FilterContentType     string
	FilterNumMovies       int
	HeyGenTemplateOverride string
}

// Load reads.env if present (error ignored), then populates Config from
// the environment, validating the required fields.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		OpenAIKey:        getEnv("OPENAI_API_KEY", ""),
		HeyGenAPIKey:     getEnv("HEYGEN_API_KEY", ""),
		VizardAPIKey:     getEnv("VIZARD_API_KEY", ""),
		CreatomateAPIKey: getEnv("CREATOMATE_API_KEY", ""),
		CloudinaryCloud:  getEnv("CLOUDINARY_CLOUD_NAME", ""),
		CloudinaryAPIKey: getEnv("CLOUDINARY_API_KEY", ""),
		CloudinarySecret: getEnv("CLOUDINARY_API_SECRET", ""),
		SupabaseURL:      getEnv("SUPABASE_URL", ""),
		SupabaseKey:      getEnv("SUPABASE_KEY", ""),

		WebhookBaseURL: getEnv("WEBHOOK_BASE_URL", ""),
		AppEnv:         Mode(getEnv("APP_ENV", "local")),
		JobID:          getEnv("JOB_ID", ""),

		StrictMode:           getEnvBool("STRICT_MODE", false),
		PosterTimingStrategy: getEnv("POSTER_TIMING_STRATEGY", "heygen_last3s"),

		IntroImageURL:  getEnv("INTRO_IMAGE_URL", "https://res.cloudinary.com/streamgank/image/upload/streamgank_intro.png"),
		OutroImageURL:  getEnv("OUTRO_IMAGE_URL", "https://res.cloudinary.com/streamgank/image/upload/streamgank_outro.png"),
		BrandBannerURL: getEnv("BRAND_BANNER_URL", "https://res.cloudinary.com/streamgank/image/upload/streamgank_banner.png"),

		HealthPort: getEnv("HEALTH_PORT", "8090"),

		LogsDir: getEnv("LOGS_DIR", "logs"),

		WorkspaceRoot: getEnv("WORKSPACE_ROOT", "/tmp/streamgank"),

		FilterCountry:          getEnv("FILTER_COUNTRY", "US"),
		FilterPlatform:         getEnv("FILTER_PLATFORM", "Netflix"),
		FilterGenre:            getEnv("FILTER_GENRE", "Horror"),
		FilterContentType:      getEnv("FILTER_CONTENT_TYPE", "Film"),
		FilterNumMovies:        getEnvInt("NUM_MOVIES", 3),
		HeyGenTemplateOverride: getEnv("HEYGEN_TEMPLATE_ID", ""),
	}

	var missing []string
	required := map[string]string{
		"OPENAI_API_KEY":        cfg.OpenAIKey,
		"HEYGEN_API_KEY":        cfg.HeyGenAPIKey,
		"VIZARD_API_KEY":        cfg.VizardAPIKey,
		"CREATOMATE_API_KEY":    cfg.CreatomateAPIKey,
		"CLOUDINARY_CLOUD_NAME": cfg.CloudinaryCloud,
		"CLOUDINARY_API_KEY":    cfg.CloudinaryAPIKey,
		"CLOUDINARY_API_SECRET": cfg.CloudinarySecret,
		"SUPABASE_URL":          cfg.SupabaseURL,
		"SUPABASE_KEY":          cfg.SupabaseKey,
	}
	for name, val := range required {
		if val == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %v", missing)
	}

	switch cfg.AppEnv {
	case ModeLocal, ModeDev, ModeProd:
	default:
		return nil, fmt.Errorf("APP_ENV must be one of local|dev|prod, got %q", cfg.AppEnv)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}
