// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import "fmt"

// Option is an optional value. The identity input of a Gate carries
// "no active identity" as a first-class state, so the absent case must
// be an ordinary comparable value rather than a nil pointer: gate keys
// are compared with == as a whole.
type Option[T comparable] struct {
	value   T
	present bool
}

// Some returns an Option holding v.
func Some[T comparable](v T) Option[T] {
	return Option[T]{value: v, present: true}
}

// None returns the absent Option.
func None[T comparable]() Option[T] {
	return Option[T]{}
}

// Get returns the held value and whether one is present.
func (o Option[T]) Get() (T, bool) {
	return o.value, o.present
}

// Present reports whether a value is held.
func (o Option[T]) Present() bool {
	return o.present
}

// String renders "none" or "some(v)". Used in log output.
func (o Option[T]) String() string {
	if !o.present {
		return "none"
	}
	return fmt.Sprintf("some(%v)", o.value)
}
