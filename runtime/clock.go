package runtime

import (
	"sync/atomic"
	"time"
)

// monotonicClock never returns the same instant twice, even when the wall
// clock is coarse or steps back. Message keys sort by this timestamp.
type monotonicClock struct {
	last atomic.Int64
	now  func() time.Time
}

func newMonotonicClock(now func() time.Time) *monotonicClock {
	return &monotonicClock{now: now}
}

func (c *monotonicClock) Next() time.Time {
	for {
		prev := c.last.Load()
		next := c.now().UnixNano()
		if next <= prev {
			next = prev + 1
		}
		if c.last.CompareAndSwap(prev, next) {
			return time.Unix(0, next).UTC()
		}
	}
}
