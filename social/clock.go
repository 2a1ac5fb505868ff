package social

import (
	"sync"
	"time"
)

// Clock abstracts time retrieval so message timestamps are deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// MonotonicClock wraps a Clock so that successive readings never go
// backwards, even if the wall clock is stepped back. Safe for concurrent use.
type MonotonicClock struct {
	base Clock

	mu   sync.Mutex
	last time.Time
}

func NewMonotonicClock(base Clock) *MonotonicClock {
	return &MonotonicClock{base: base}
}

func (c *MonotonicClock) Now() time.Time {
	t := c.base.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.Before(c.last) {
		t = c.last
	}
	c.last = t
	return t
}
