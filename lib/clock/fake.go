// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake returns a deterministic Clock pinned to initial. Time moves only
// when Advance is called; After channels, tickers, and sleeps fire when
// the clock passes their deadline. Safe for concurrent use.
func Fake(initial time.Time) *FakeClock {
	c := &FakeClock{current: initial}
	c.registered = sync.NewCond(&c.mu)
	return c
}

// FakeClock implements Clock with manually advanced time.
type FakeClock struct {
	mu         sync.Mutex
	current    time.Time
	waiters    []*waiter
	registered *sync.Cond
}

// waiter is a pending After, Sleep, or ticker deadline.
type waiter struct {
	deadline time.Time
	ch       chan time.Time

	// interval is non-zero for tickers; after firing, the waiter is
	// rescheduled at deadline + interval.
	interval time.Duration

	stopped bool
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// After returns a channel that receives once the clock is advanced past
// the deadline. If d <= 0 the channel receives immediately and no
// waiter is registered.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.current
		return ch
	}
	c.waiters = append(c.waiters, &waiter{deadline: c.current.Add(d), ch: ch})
	c.registered.Broadcast()
	return ch
}

// NewTicker returns a Ticker whose ticks are driven by Advance. Panics
// if d <= 0.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive ticker interval")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	w := &waiter{
		deadline: c.current.Add(d),
		ch:       make(chan time.Time, 1),
		interval: d,
	}
	c.waiters = append(c.waiters, w)
	c.registered.Broadcast()

	return &Ticker{
		C: w.ch,
		stop: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			w.stopped = true
		},
	}
}

// Sleep blocks until the clock is advanced past the deadline. Returns
// immediately if d <= 0.
func (c *FakeClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	<-c.After(d)
}

// Advance moves the clock forward by d and fires every waiter whose
// deadline falls within the new time, in deadline order. Channel sends
// are non-blocking so an unread ticker tick is dropped rather than
// wedging the test, matching time.Ticker.
//
// A ticker whose interval is spanned several times over fires once per
// elapsed interval.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	target := c.current
	c.mu.Unlock()

	for {
		due := c.takeExpired(target)
		if len(due) == 0 {
			return
		}
		sort.Slice(due, func(i, j int) bool {
			return due[i].deadline.Before(due[j].deadline)
		})
		for _, w := range due {
			select {
			case w.ch <- target:
			default:
			}
		}
	}
}

// takeExpired removes due waiters from the pending list, rescheduling
// tickers for their next interval, and returns them.
func (c *FakeClock) takeExpired(target time.Time) []*waiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	var due, remaining []*waiter
	for _, w := range c.waiters {
		if w.stopped {
			continue
		}
		if !w.deadline.After(target) {
			due = append(due, w)
		} else {
			remaining = append(remaining, w)
		}
	}
	for _, w := range due {
		if w.interval > 0 {
			w.deadline = w.deadline.Add(w.interval)
			remaining = append(remaining, w)
		}
	}
	c.waiters = remaining
	return due
}

// WaitForTimers blocks until at least n waiters are pending. Call this
// after starting a goroutine that registers a timer and before
// Advance, so the advance cannot race the registration.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.pendingLocked() < n {
		c.registered.Wait()
	}
}

// PendingCount reports the number of live waiters.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingLocked()
}

func (c *FakeClock) pendingLocked() int {
	n := 0
	for _, w := range c.waiters {
		if !w.stopped {
			n++
		}
	}
	return n
}
