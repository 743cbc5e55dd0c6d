package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterAllowsFirstCall(t *testing.T) {
	r := NewRateLimiter(time.Hour)
	assert.True(t, r.Allow())
}

func TestRateLimiterBlocksWithinInterval(t *testing.T) {
	r := NewRateLimiter(time.Hour)
	require := r.Allow()
	assert.True(t, require)
	assert.False(t, r.Allow())
}

func TestRateLimiterAllowsAgainAfterIntervalElapses(t *testing.T) {
	r := NewRateLimiter(10 * time.Millisecond)
	assert.True(t, r.Allow())
	assert.False(t, r.Allow())

	time.Sleep(15 * time.Millisecond)
	assert.True(t, r.Allow())
}

func TestRateLimiterZeroIntervalAlwaysAllows(t *testing.T) {
	r := NewRateLimiter(0)
	assert.True(t, r.Allow())
	assert.True(t, r.Allow())
	assert.True(t, r.Allow())
}
