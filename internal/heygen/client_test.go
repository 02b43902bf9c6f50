package heygen

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEstimateDuration_Bands(t *testing.T) {
	tests := []struct {
		name  string
		chars int
		want  time.Duration
	}{
		{"short script", 120, 4 * time.Minute},
		{"short band upper edge", 300, 4 * time.Minute},
		{"medium script", 500, 6 * time.Minute},
		{"medium band upper edge", 800, 6 * time.Minute},
		{"long script uses formula", 1000, 8 * time.Minute},
		{"very long script caps at 12", 4000, 12 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateDuration(tt.chars))
		})
	}
}

func TestTimeout_ClampsToBand(t *testing.T) {
	// 4min estimate + 5min buffer = 9min, inside [8, 25].
	assert.Equal(t, 9*time.Minute, Timeout(100))
	// 12min cap + 5min buffer = 17min.
	assert.Equal(t, 17*time.Minute, Timeout(10000))
}

func TestPollInterval_AdaptiveSchedule(t *testing.T) {
	assert.Equal(t, 10*time.Second, pollInterval(0))
	assert.Equal(t, 10*time.Second, pollInterval(119*time.Second))
	assert.Equal(t, 15*time.Second, pollInterval(120*time.Second))
	assert.Equal(t, 15*time.Second, pollInterval(299*time.Second))
	assert.Equal(t, 20*time.Second, pollInterval(300*time.Second))
	assert.Equal(t, 20*time.Second, pollInterval(599*time.Second))
	assert.Equal(t, 30*time.Second, pollInterval(600*time.Second))
	assert.Equal(t, 30*time.Second, pollInterval(time.Hour))
}

func TestTerminalStatuses(t *testing.T) {
	assert.True(t, IsCompleted("completed"))
	assert.False(t, IsCompleted("processing"))
	assert.True(t, IsTerminalFailure("failed"))
	assert.True(t, IsTerminalFailure("error"))
	assert.False(t, IsTerminalFailure("waiting"))
}
