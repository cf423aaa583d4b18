// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"sync/atomic"
)

var uniqueCounter atomic.Uint64

// UniqueID returns "prefix-N" with a process-wide monotonically
// increasing N. Use it instead of time.Now() when tests need
// distinguishable labels or names.
//
//	label := testutil.UniqueID("account")  // "account-1", "account-2", ...
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, uniqueCounter.Add(1))
}
