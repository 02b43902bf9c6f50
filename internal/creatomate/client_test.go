package creatomate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsCompleted(t *testing.T) {
	assert.True(t, IsCompleted("succeeded"))
	assert.False(t, IsCompleted("planned"))
	assert.False(t, IsCompleted("failed"))
}

func TestIsTerminalFailure(t *testing.T) {
	assert.True(t, IsTerminalFailure("failed"))
	assert.False(t, IsTerminalFailure("succeeded"))
	assert.False(t, IsTerminalFailure("rendering"))
}

func TestPercent(t *testing.T) {
	assert.Equal(t, "", percent(0))
	assert.Equal(t, "72%", percent(72))
	assert.Equal(t, "8.5%", percent(8.5))
}
