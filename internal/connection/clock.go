package connection

import (
	"time"

	"github.com/tilewars/engine/pkg/units"
)

// Clock measures wall time spent unpaused. It starts paused.
type Clock struct {
	now     func() time.Time
	since   time.Time
	elapsed time.Duration
	running bool
}

// NewClock returns a paused clock; nil now means time.Now.
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

func (c *Clock) Start() {
	if c.running {
		return
	}
	c.since = c.now()
	c.running = true
}

func (c *Clock) Pause() {
	if !c.running {
		return
	}
	c.elapsed += c.now().Sub(c.since)
	c.running = false
}

func (c *Clock) Running() bool {
	return c.running
}

// Elapsed is the unpaused time so far, in game seconds.
func (c *Clock) Elapsed() units.Scalar[units.Time] {
	d := c.elapsed
	if c.running {
		d += c.now().Sub(c.since)
	}
	return units.Of[units.Time](d.Seconds())
}
