// Package tickertest provides a manually advanced clock for driving tickers in tests.
package tickertest

import (
	"sort"
	"sync"
	"time"

	"github.com/audiolibrelab/tapedeck/internal/ticker"
)

// Clock is a fake ticker.Clock. Time only moves when Advance is called, and
// every due fire is handled by its receiver, callbacks included, before
// Advance moves on.
type Clock struct {
	mu      sync.Mutex
	now     time.Time
	sources []*source
}

// NewClock returns a fake clock starting at an arbitrary fixed instant
func NewClock() *Clock {
	return &Clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

type source struct {
	ch       chan time.Time
	ack      chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	next     time.Time
	period   time.Duration // zero for one-shot timers
	fired    bool
}

func (s *source) C() <-chan time.Time { return s.ch }

// Ack tells Advance the last fire has been handled
func (s *source) Ack() {
	select {
	case s.ack <- struct{}{}:
	default:
	}
}

func (s *source) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

func (s *source) stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) NewTicker(d time.Duration) ticker.Source {
	return c.add(d, d)
}

func (c *Clock) NewTimer(d time.Duration) ticker.Source {
	return c.add(d, 0)
}

func (c *Clock) add(d, period time.Duration) *source {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := &source{
		ch:     make(chan time.Time),
		ack:    make(chan struct{}, 1),
		done:   make(chan struct{}),
		next:   c.now.Add(d),
		period: period,
	}
	c.sources = append(c.sources, s)
	return s
}

// Advance moves the clock forward by d, delivering every fire that falls due in
// time order. Each delivery blocks until the receiver acknowledges it or stops
// the source.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		s := c.nextDue(target)
		if s == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		at := s.next
		c.now = at
		if s.period > 0 {
			s.next = s.next.Add(s.period)
		} else {
			s.fired = true
		}
		c.mu.Unlock()

		select {
		case s.ch <- at:
		case <-s.done:
			continue
		}
		select {
		case <-s.ack:
		case <-s.done:
		}
	}
}

// nextDue returns the live source with the earliest fire at or before target.
// Tickers sort before timers at the same instant.
func (c *Clock) nextDue(target time.Time) *source {
	live := c.sources[:0]
	for _, s := range c.sources {
		if !s.stopped() && !s.fired {
			live = append(live, s)
		}
	}
	c.sources = live

	due := make([]*source, 0, len(live))
	for _, s := range live {
		if !s.next.After(target) {
			due = append(due, s)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.SliceStable(due, func(i, j int) bool {
		if due[i].next.Equal(due[j].next) {
			return due[i].period > due[j].period
		}
		return due[i].next.Before(due[j].next)
	})
	return due[0]
}
