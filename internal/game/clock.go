package game

import (
	"sort"
	"sync"
	"time"
)

// Clock schedules deferred callbacks. Real games use RealClock; tests use
// ManualClock so timer staleness is exercised without sleeping.
type Clock interface {
	// AfterFunc runs fn after d and returns a stop function.
	AfterFunc(d time.Duration, fn func()) (stop func())
}

type RealClock struct{}

func (RealClock) AfterFunc(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// ManualClock fires timers only when advanced.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Duration
	nextID int
	timers map[int]*manualTimer
}

type manualTimer struct {
	at time.Duration
	fn func()
}

func NewManualClock() *ManualClock {
	return &ManualClock{timers: map[int]*manualTimer{}}
}

func (c *ManualClock) AfterFunc(d time.Duration, fn func()) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.timers[id] = &manualTimer{at: c.now + d, fn: fn}
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.timers, id)
		c.mu.Unlock()
	}
}

// Advance moves time forward and fires due timers in schedule order.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []int
	for id, t := range c.timers {
		if t.at <= c.now {
			due = append(due, id)
		}
	}
	sort.Slice(due, func(i, j int) bool { return c.timers[due[i]].at < c.timers[due[j]].at })
	fns := make([]func(), 0, len(due))
	for _, id := range due {
		fns = append(fns, c.timers[id].fn)
		delete(c.timers, id)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
