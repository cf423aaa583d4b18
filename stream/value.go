// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import "sync"

// Value is a hot latest-value cell. Set replaces the current value and
// queues the transition to every attached Watcher; setting a value
// equal to the current one is a no-op, so consumers only ever see
// distinct consecutive values.
//
// Delivery to watchers is lossless and ordered. A watcher that falls
// behind accumulates queued transitions rather than having them
// conflated: a true→false→true toggle always reaches the watcher as
// three values. The Gate depends on this to honor every input
// transition with a full cancel and restart.
//
// Value is safe for concurrent use.
type Value[T comparable] struct {
	mu       sync.Mutex
	current  T
	watchers []*Watcher[T]
}

// NewValue returns a Value holding initial.
func NewValue[T comparable](initial T) *Value[T] {
	return &Value[T]{current: initial}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Set replaces the current value and notifies watchers. Returns false
// without notifying anyone when next equals the current value.
func (v *Value[T]) Set(next T) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if next == v.current {
		return false
	}
	v.current = next

	for _, w := range v.watchers {
		w.queue = append(w.queue, next)
		select {
		case w.wake <- struct{}{}:
		default:
		}
	}
	return true
}

// Watch attaches a new Watcher and returns it together with the value
// current at the moment of attachment. Registration and the snapshot
// happen under one lock, so every Set after the snapshot reaches the
// watcher's queue: no transition is lost and none is delivered twice.
//
// Close the Watcher when done or the Value retains it forever.
func (v *Value[T]) Watch() (*Watcher[T], T) {
	v.mu.Lock()
	defer v.mu.Unlock()

	w := &Watcher[T]{
		value: v,
		wake:  make(chan struct{}, 1),
	}
	v.watchers = append(v.watchers, w)
	return w, v.current
}

// Watcher receives the distinct transitions of a Value in order.
//
// Usage is a two-step select loop: block on Ready, then drain queued
// transitions with Next until it reports no more.
type Watcher[T comparable] struct {
	value  *Value[T]
	queue  []T
	wake   chan struct{}
	closed bool
}

// Ready returns a channel that signals when at least one transition is
// queued. The signal is a wakeup, not a count; drain with Next.
func (w *Watcher[T]) Ready() <-chan struct{} {
	return w.wake
}

// Next pops the oldest queued transition. Returns false when the queue
// is empty.
func (w *Watcher[T]) Next() (T, bool) {
	w.value.mu.Lock()
	defer w.value.mu.Unlock()

	if len(w.queue) == 0 {
		var zero T
		return zero, false
	}
	next := w.queue[0]
	w.queue = w.queue[1:]
	if len(w.queue) > 0 {
		select {
		case w.wake <- struct{}{}:
		default:
		}
	}
	return next, true
}

// Close detaches the watcher from its Value. Idempotent. Pending
// queued transitions are discarded.
func (w *Watcher[T]) Close() {
	v := w.value
	v.mu.Lock()
	defer v.mu.Unlock()

	if w.closed {
		return
	}
	w.closed = true
	for i, existing := range v.watchers {
		if existing == w {
			v.watchers = append(v.watchers[:i], v.watchers[i+1:]...)
			break
		}
	}
	w.queue = nil
}
