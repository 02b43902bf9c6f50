package llmscript

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/streamgank/workflow/internal/models"
)

// Completer is the subset of Client the Generator depends on — narrowed to
// an interface so tests can substitute a fake without a real API key.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float32, maxTokens int) (string, error)
}

// wordBandMin/wordBandMax are the outer acceptance band for K>1 hooks
// (24–32 words, 8–11 s at 3 words/s).
const (
	wordBandMin   = 24
	wordBandMax   = 32
	wordTargetMin = 24
	wordTargetMax = 30
	maxHookRetries = 3
)

var transportBackoff = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// Generator runs the hook-timing retry state machine: prompt construction,
// word-count validation, bounded semantic retries distinct from transport
// retries, sanitization, intro integration, and disk persistence all live
// here.
type Generator struct {
	client    Completer
	outputDir string // per-job directory scripts are written under
}

// NewGenerator builds a Generator writing script files under outputDir.
func NewGenerator(client Completer, outputDir string) *Generator {
	return &Generator{client: client, outputDir: outputDir}
}

// Warning is a non-fatal condition recorded by the caller against the
// JobRecord; HookTimingUnmet is the only warning this subsystem emits.
type Warning struct {
	Kind    models.ErrorKind
	Message string
}

// Generate produces a ScriptBundle for the given movies and filter,
// satisfying the intro-integration and timing invariants.
func (g *Generator) Generate(ctx context.Context, movies []models.Movie, filter models.Filter) (*models.ScriptBundle, []Warning, error) {
	if len(movies) == 0 {
		return nil, nil, fmt.Errorf("script generation: no movies supplied")
	}

	intro := g.generateIntro(ctx, filter)

	hooks := make([]string, len(movies))
	var warnings []Warning

	for i := range movies {
		slot := i + 1
		if slot == 1 {
			hook, err := g.generateOpenHook(ctx, movies[i], filter)
			if err != nil {
				return nil, warnings, models.NewWorkflowError(models.ErrScriptGenerationFailed, "script_generation", err)
			}
			hooks[i] = hook
			continue
		}

		hook, unmet, err := g.generateTimedHook(ctx, movies[i], filter)
		if err != nil {
			return nil, warnings, models.NewWorkflowError(models.ErrScriptGenerationFailed, "script_generation", err)
		}
		if unmet {
			warnings = append(warnings, Warning{
				Kind:    models.ErrHookTimingUnmet,
				Message: fmt.Sprintf("movie%d: hook accepted outside the timing band after %d retries", slot, maxHookRetries),
			})
		}
		hooks[i] = hook
	}

	bundle := assembleBundle(intro, hooks)

	if err := g.persist(bundle); err != nil {
		return bundle, warnings, fmt.Errorf("script generation: failed to persist scripts: %w", err)
	}

	return bundle, warnings, nil
}

// assembleBundle implements the intro-integration invariant:
// individual["movie1"] = sanitize(intro) + " " + sanitize(hooks[0]);
// individual["movieK"] = sanitize(hooks[K-1]) for K>1.
func assembleBundle(intro string, hooks []string) *models.ScriptBundle {
	sanitizedIntro := sanitize(intro)
	sanitizedHooks := make([]string, len(hooks))
	for i, h := range hooks {
		sanitizedHooks[i] = sanitize(h)
	}

	individual := make(map[string]string, len(hooks))
	for i := range sanitizedHooks {
		slot := models.Slot(i + 1)
		if i == 0 {
			individual[slot] = sanitizedIntro + " " + sanitizedHooks[0]
		} else {
			individual[slot] = sanitizedHooks[i]
		}
	}

	var combined strings.Builder
	combined.WriteString(sanitizedIntro)
	for _, h := range sanitizedHooks {
		combined.WriteString(" ")
		combined.WriteString(h)
	}

	return &models.ScriptBundle{
		Intro:      sanitizedIntro,
		Hooks:      sanitizedHooks,
		Combined:   combined.String(),
		Individual: individual,
	}
}

// generateIntro makes one request (subject to completeWithBackoff's
// transport retries), with a deterministic template fallback when that
// request fails — an intro is never worth failing the whole job over.
func (g *Generator) generateIntro(ctx context.Context, filter models.Filter) string {
	system := "You write a single short promotional sentence for a streaming catalog teaser. 10 to 12 words. Name the genre and the platform. Never mention a specific movie title."
	user := fmt.Sprintf("Genre: %s. Platform: %s.", filter.Genre, filter.Platform)

	text, err := g.completeWithBackoff(ctx, system, user, 0.8, 40)
	if err != nil {
		return fmt.Sprintf("Get ready for the best %s hits on %s.", filter.Genre, filter.Platform)
	}
	return text
}

// generateOpenHook handles the first slot: open prompt, no timing
// validation, temperature 0.8.
func (g *Generator) generateOpenHook(ctx context.Context, movie models.Movie, filter models.Filter) (string, error) {
	system := "You write an opening hook line for a short-form vertical movie teaser. 10 to 18 words. Punchy, no spoilers, no direct title mention."
	user := fmt.Sprintf("Genre: %s. Year: %d.", firstGenre(movie), movie.Year)

	text, err := g.completeWithBackoff(ctx, system, user, 0.8, 60)
	if err != nil {
		return "", fmt.Errorf("open hook generation failed: %w", err)
	}
	return text, nil
}

// generateTimedHook handles every slot after the first, driving the
// per-hook state machine: Requesting → Validating → Accepted |
// Requesting(retry) | ForcedAccept. Returns the accepted/forced candidate
// and whether it was a forced accept (HookTimingUnmet).
func (g *Generator) generateTimedHook(ctx context.Context, movie models.Movie, filter models.Filter) (string, bool, error) {
	var lastCandidate string

	for retry := 0; retry <= maxHookRetries; retry++ {
		target := wordTargetMin + 2*retry
		if retry == 0 {
			target = wordTargetMax // first attempt targets the nominal 24-30 band's top
		}

		temp := float32(0.4)
		maxTokens := 75
		system := "You write a hook line for a short-form vertical movie teaser. Punchy, no spoilers, no direct title mention."
		user := fmt.Sprintf("Genre: %s. Year: %d. Write EXACTLY %d words.", firstGenre(movie), movie.Year, target)
		if retry > 0 {
			temp = 0.3
			maxTokens = 80
			user = fmt.Sprintf("URGENT: Create EXACTLY %d words. Genre: %s. Year: %d.", target, firstGenre(movie), movie.Year)
		}

		text, err := g.completeWithBackoff(ctx, system, user, temp, maxTokens)
		if err != nil {
			return "", false, fmt.Errorf("timed hook generation failed (retry %d): %w", retry, err)
		}

		candidate := sanitize(text)
		lastCandidate = candidate
		words := wordCount(candidate)

		if words >= wordBandMin && words <= wordBandMax {
			return candidate, false, nil
		}
	}

	return lastCandidate, true, nil
}

// completeWithBackoff applies the transport-level retry policy —
// up to 3 attempts, waiting 1 s and then 2 s between them —
// which is deliberately separate from the semantic/content retry loop in
// generateTimedHook: one retries a broken connection, the other retries a
// well-formed-but-wrong-shaped answer, and conflating them would retry the
// wrong thing for the wrong reason.
func (g *Generator) completeWithBackoff(ctx context.Context, system, user string, temperature float32, maxTokens int) (string, error) {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(transportBackoff[attempt-1]):
			}
		}

		text, err := g.client.Complete(ctx, system, user, temperature, maxTokens)
		if err == nil {
			return text, nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("llm transport retries exhausted: %w", lastErr)
}

// sanitize strips outer quotes, collapses whitespace, trims, and ensures
// terminal punctuation.
func sanitize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	s = strings.TrimSpace(s)

	fields := strings.Fields(s)
	s = strings.Join(fields, " ")

	if s == "" {
		return s
	}
	last := s[len(s)-1]
	if last != '.' && last != '!' && last != '?' {
		s += "."
	}
	return s
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

func firstGenre(m models.Movie) string {
	if len(m.Genres) == 0 {
		return ""
	}
	return m.Genres[0]
}

// persist writes the ScriptBundle as UTF-8 text, one file per slot plus a
// combined file, under the generator's per-job directory.
func (g *Generator) persist(bundle *models.ScriptBundle) error {
	if err := os.MkdirAll(g.outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create scripts directory: %w", err)
	}

	slots := make([]string, 0, len(bundle.Individual))
	for slot := range bundle.Individual {
		slots = append(slots, slot)
	}

	for _, slot := range slots {
		path := filepath.Join(g.outputDir, slot+".txt")
		if err := os.WriteFile(path, []byte(bundle.Individual[slot]), 0o644); err != nil {
			return fmt.Errorf("failed to write script for %s: %w", slot, err)
		}
	}

	combinedPath := filepath.Join(g.outputDir, "combined.txt")
	if err := os.WriteFile(combinedPath, []byte(bundle.Combined), 0o644); err != nil {
		return fmt.Errorf("failed to write combined script: %w", err)
	}
	return nil
}
