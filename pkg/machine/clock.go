package machine

import (
	"context"
	"time"
)

// Clock raises a timer interrupt every interval.
type Clock struct {
	interval time.Duration
	tick     func()
}

// NewClock creates a clock calling tick every interval. A zero interval
// makes a clock that never ticks.
func NewClock(interval time.Duration, tick func()) *Clock {
	return &Clock{interval: interval, tick: tick}
}

// Run ticks until ctx is cancelled.
func (c *Clock) Run(ctx context.Context) error {
	if c.interval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.tick()
		}
	}
}
