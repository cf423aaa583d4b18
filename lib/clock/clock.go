// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock is the time surface keyfold components depend on. It covers
// reading the current time, one-shot waits, and periodic tickers; that
// is everything the daemon and the vault layer need.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once
	// duration d has elapsed. If d <= 0 the channel receives
	// immediately.
	After(d time.Duration) <-chan time.Time

	// NewTicker returns a Ticker delivering ticks on C every d.
	// Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker

	// Sleep blocks the calling goroutine for at least d.
	Sleep(d time.Duration)
}

// Ticker delivers periodic ticks on C. C has capacity 1, matching
// time.Ticker: if the consumer falls behind, ticks are dropped, not
// queued.
type Ticker struct {
	C <-chan time.Time

	stop func()
}

// Stop turns the ticker off. No further ticks arrive on C after Stop
// returns. Stop does not close C.
func (t *Ticker) Stop() { t.stop() }

// Real returns a Clock backed by the time package.
func Real() Clock { return sysClock{} }

type sysClock struct{}

func (sysClock) Now() time.Time                         { return time.Now() }
func (sysClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (sysClock) Sleep(d time.Duration)                  { time.Sleep(d) }

func (sysClock) NewTicker(d time.Duration) *Ticker {
	ticker := time.NewTicker(d)
	return &Ticker{C: ticker.C, stop: ticker.Stop}
}
