// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for keyfold packages.
//
// [RequireReceive], [RequireSend], and [RequireClosed] encapsulate the
// timeout safety valve pattern (select with time.After fallback) so
// that individual tests do not need direct time.After calls. These are
// the only places the test suite touches the real wall clock; all
// other timing goes through lib/clock fakes.
//
// [SocketDir] creates a short-named temporary directory in /tmp for
// Unix domain sockets, because sun_path caps socket paths at 108 bytes
// and nested test temp directories routinely blow past that.
//
// [UniqueID] generates monotonically increasing identifiers for test
// disambiguation (account labels, item names) without involving time.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
