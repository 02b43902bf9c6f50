// Package cache serializes step outputs to disk in development modes so a
// re-run against the same filter can skip expensive external calls. The
// cache is an optional observer of the workflow, never a dependency: every
// method degrades to a no-op or a miss, and the orchestrator treats cache
// errors as warnings.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/streamgank/workflow/internal/config"
	"github.com/streamgank/workflow/internal/models"
)

// Cache reads step outputs in local mode, writes them in dev mode, and does
// neither in prod.
type Cache struct {
	dir  string
	mode config.Mode
}

// New builds a Cache rooted at dir. A nil *Cache is valid and inert.
func New(dir string, mode config.Mode) *Cache {
	return &Cache{dir: dir, mode: mode}
}

// filterKey derives a stable key from the filter so cached outputs are only
// reused for an identical filter tuple.
func filterKey(filter models.Filter) string {
	payload, _ := json.Marshal(filter)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])[:12]
}

func (c *Cache) stepPath(step string, filter models.Filter) string {
	return filepath.Join(c.dir, filterKey(filter), step+".json")
}

// Save writes a step output in dev mode; local and prod modes are no-ops.
func (c *Cache) Save(step string, filter models.Filter, v interface{}) error {
	if c == nil || c.mode != config.ModeDev {
		return nil
	}

	path := c.stepPath(step, filter)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cached %s output: %w", step, err)
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("failed to write cached %s output: %w", step, err)
	}
	return nil
}

// Load reads a step output in local mode, reporting whether a cached value
// was found. Dev and prod modes always miss.
func (c *Cache) Load(step string, filter models.Filter, v interface{}) (bool, error) {
	if c == nil || c.mode != config.ModeLocal {
		return false, nil
	}

	payload, err := os.ReadFile(c.stepPath(step, filter))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read cached %s output: %w", step, err)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return false, fmt.Errorf("failed to parse cached %s output: %w", step, err)
	}
	return true, nil
}

// SaveRecord persists the terminal JobRecord in dev mode.
func (c *Cache) SaveRecord(rec *models.JobRecord) error {
	if c == nil || c.mode != config.ModeDev {
		return nil
	}

	path := filepath.Join(c.dir, "records", rec.JobID+".json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create record directory: %w", err)
	}

	payload, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal job record: %w", err)
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("failed to write job record: %w", err)
	}
	return nil
}

// LoadRecord reads a previously saved JobRecord by job ID regardless of
// mode — record inspection is a debugging affordance, not a cache read.
func (c *Cache) LoadRecord(jobID string) (*models.JobRecord, error) {
	if c == nil {
		return nil, fmt.Errorf("no cache configured")
	}

	payload, err := os.ReadFile(filepath.Join(c.dir, "records", jobID+".json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read job record %s: %w", jobID, err)
	}

	var rec models.JobRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse job record %s: %w", jobID, err)
	}
	return &rec, nil
}
