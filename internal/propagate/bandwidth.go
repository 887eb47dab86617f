package propagate

import (
	"sync"
	"time"
)

// BandwidthLimiter throttles a single running transfer to either an
// absolute byte-rate cap or a percentage-of-line-rate cap, by sleeping
// between progress ticks. It is single-threaded per job: a job installs one
// limiter and feeds it ticks from its own progress callback only.
type BandwidthLimiter struct {
	// Limit is the configured cap: 0 disables throttling, a positive value
	// is an absolute bytes/sec cap, a value in (-100, 0) is a percentage of
	// the measured line rate.
	Limit int64

	mu       sync.Mutex
	lastTick time.Time
	lastDone int64

	sleep func(time.Duration)
	now   func() time.Time
}

// NewBandwidthLimiter creates a limiter for the given signed limit.
func NewBandwidthLimiter(limit int64) *BandwidthLimiter {
	return &BandwidthLimiter{
		Limit: limit,
		sleep: time.Sleep,
		now:   time.Now,
	}
}

// Tick reports that `done` cumulative bytes have been transferred as of
// now, and blocks for as long as necessary to honor the configured cap.
func (b *BandwidthLimiter) Tick(done int64) {
	if b.Limit == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if b.lastTick.IsZero() {
		b.lastTick = now
		b.lastDone = done
		return
	}

	elapsed := now.Sub(b.lastTick)
	bytesSinceLast := done - b.lastDone
	b.lastTick = now
	b.lastDone = done

	if elapsed <= 0 {
		return
	}

	elapsedMicros := elapsed.Microseconds()

	switch {
	case b.Limit > 0:
		// Absolute bytes/sec cap: sleep the deficit between how long this
		// many bytes should have taken at the cap and how long it actually
		// took.
		wantMicros := bytesSinceLast * 1_000_000 / b.Limit
		deficit := wantMicros - elapsedMicros
		if deficit > 0 {
			b.sleep(time.Duration(deficit) * time.Microsecond)
		}
	case b.Limit < 0 && b.Limit > -100:
		// Percentage of line rate: sleep a multiple of elapsed time such
		// that active_time / total_time == |Limit| percent.
		sleepMicros := -elapsedMicros * (1 + 100/b.Limit)
		if sleepMicros > 0 {
			b.sleep(time.Duration(sleepMicros) * time.Microsecond)
		}
	}
}
