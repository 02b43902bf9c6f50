package progress

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var lineFormat = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2} - streamgank_workflow - (INFO|WARNING|ERROR) -.+`)

func TestJobLogger_WritesExpectedLineFormat(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewJobLogger(dir, "wf-123", "streamgank_workflow")
	require.NoError(t, err)

	logger.Info("Workflow started", map[string]interface{}{"job_id": "job-1"})
	logger.Warning("Scroll screencast unavailable, composition will use static intro", nil)
	logger.Error("Workflow failed", map[string]interface{}{"kind": "AvatarRenderFailed"})
	require.NoError(t, logger.Close())

	assert.Equal(t, filepath.Join(dir, "workflow_wf-123.log"), logger.Path())

	raw, err := os.ReadFile(logger.Path())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 3)
	for _, line := range lines {
		assert.Regexp(t, lineFormat, line)
	}

	assert.Contains(t, lines[0], `| STRUCTURED: {"job_id":"job-1"}`)
	assert.NotContains(t, lines[1], "STRUCTURED", "no structured suffix without a payload")
	assert.Contains(t, lines[2], `"kind":"AvatarRenderFailed"`)
}

func TestJobLogger_NilIsInert(t *testing.T) {
	var logger *JobLogger
	logger.Info("ignored", nil)
	logger.Warning("ignored", nil)
	logger.Error("ignored", nil)
	assert.Equal(t, "", logger.Path())
	assert.NoError(t, logger.Close())
}

func TestJobLogger_AppendsAcrossReopens(t *testing.T) {
	dir := t.TempDir()

	first, err := NewJobLogger(dir, "wf-9", "streamgank_workflow")
	require.NoError(t, err)
	first.Info("first run", nil)
	require.NoError(t, first.Close())

	second, err := NewJobLogger(dir, "wf-9", "streamgank_workflow")
	require.NoError(t, err)
	second.Info("second run", nil)
	require.NoError(t, second.Close())

	raw, err := os.ReadFile(second.Path())
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(raw)), "\n"), 2)
}
