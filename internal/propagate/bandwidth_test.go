package propagate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeLimiter(limit int64, elapsedPerTick time.Duration) (*BandwidthLimiter, *[]time.Duration) {
	slept := &[]time.Duration{}
	b := NewBandwidthLimiter(limit)
	cur := time.Unix(0, 0)
	b.now = func() time.Time {
		t := cur
		cur = cur.Add(elapsedPerTick)
		return t
	}
	b.sleep = func(d time.Duration) {
		*slept = append(*slept, d)
	}
	return b, slept
}

func TestBandwidthLimiter_Disabled_NeverSleeps(t *testing.T) {
	b, slept := fakeLimiter(0, 10*time.Millisecond)
	b.Tick(0)
	b.Tick(1 << 30)
	assert.Empty(t, *slept)
}

func TestBandwidthLimiter_Absolute_SleepsWhenOverCap(t *testing.T) {
	// cap: 1000 bytes/sec. 10ms tick transferring 100 bytes => instantaneous
	// rate 10000 bytes/sec, way over cap, so it must sleep.
	b, slept := fakeLimiter(1000, 10*time.Millisecond)
	b.Tick(0)
	b.Tick(100)
	require.Len(t, *slept, 1)
	assert.Greater(t, (*slept)[0], time.Duration(0))
}

func TestBandwidthLimiter_Absolute_NoSleepUnderCap(t *testing.T) {
	// cap: 1,000,000 bytes/sec, 10ms tick transferring 100 bytes is way under.
	b, slept := fakeLimiter(1_000_000, 10*time.Millisecond)
	b.Tick(0)
	b.Tick(100)
	assert.Empty(t, *slept)
}

func TestBandwidthLimiter_Percentage_50PercentSleepsEqualElapsed(t *testing.T) {
	b, slept := fakeLimiter(-50, 10*time.Millisecond)
	b.Tick(0)
	b.Tick(100)
	require.Len(t, *slept, 1)
	assert.Equal(t, 10*time.Millisecond, (*slept)[0])
}

func TestBandwidthLimiter_Percentage_25PercentSleepsTripleElapsed(t *testing.T) {
	b, slept := fakeLimiter(-25, 10*time.Millisecond)
	b.Tick(0)
	b.Tick(100)
	require.Len(t, *slept, 1)
	assert.Equal(t, 30*time.Millisecond, (*slept)[0])
}
