// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import "sync"

// Demand is reference-counted liveness. Anything that wants a Gate's
// output live holds an acquisition for as long as its interest lasts;
// the 0↔1 holder transitions drive a boolean Value consumed as the
// gate's liveness input.
//
// Demand replaces implicit subscriber counting with an explicit handle
// so that interest can come from sources other than output consumers
// (a prefetcher, a test) and so that liveness is observable on its own.
type Demand struct {
	mu      sync.Mutex
	holders int
	live    *Value[bool]
}

// NewDemand returns a Demand with no holders. Its Live value starts
// false.
func NewDemand() *Demand {
	return &Demand{live: NewValue(false)}
}

// Acquire registers interest and returns the release. Release is
// idempotent; dropping the last holder flips Live to false.
func (d *Demand) Acquire() (release func()) {
	d.mu.Lock()
	d.holders++
	if d.holders == 1 {
		d.live.Set(true)
	}
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			d.holders--
			if d.holders == 0 {
				d.live.Set(false)
			}
			d.mu.Unlock()
		})
	}
}

// Live exposes the holder count's 0↔1 transitions as a boolean Value.
func (d *Demand) Live() *Value[bool] {
	return d.live
}

// Holders reports the current number of acquisitions.
func (d *Demand) Holders() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.holders
}
