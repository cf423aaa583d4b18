// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"testing"

	"github.com/keyfold/keyfold/lib/testutil"
)

func TestDemandZeroOneEdges(t *testing.T) {
	d := NewDemand()
	if d.Live().Get() {
		t.Fatal("new demand should not be live")
	}

	releaseFirst := d.Acquire()
	if !d.Live().Get() {
		t.Fatal("demand with one holder should be live")
	}

	releaseSecond := d.Acquire()
	if d.Holders() != 2 {
		t.Fatalf("Holders() = %d, want 2", d.Holders())
	}

	releaseFirst()
	if !d.Live().Get() {
		t.Fatal("demand should stay live while a holder remains")
	}

	releaseSecond()
	if d.Live().Get() {
		t.Fatal("demand with no holders should not be live")
	}
}

func TestDemandReleaseIdempotent(t *testing.T) {
	d := NewDemand()
	release := d.Acquire()
	release()
	release()
	if d.Holders() != 0 {
		t.Fatalf("Holders() = %d, want 0 after double release", d.Holders())
	}

	// The count is not corrupted: a fresh cycle still works.
	again := d.Acquire()
	if !d.Live().Get() {
		t.Fatal("demand should be live after re-acquire")
	}
	again()
	if d.Live().Get() {
		t.Fatal("demand should drop back to idle")
	}
}

func TestDemandOnlyEdgesNotifyWatchers(t *testing.T) {
	d := NewDemand()
	w, live := d.Live().Watch()
	defer w.Close()
	if live {
		t.Fatal("snapshot should be false for a fresh demand")
	}

	release := d.Acquire()
	testutil.RequireReceive(t, w.Ready(), waitTimeout, "liveness rise")
	if v, ok := w.Next(); !ok || !v {
		t.Fatalf("Next() = (%v, %v), want (true, true)", v, ok)
	}

	// 1→2→1 holder movement is not an edge.
	extra := d.Acquire()
	extra()
	if _, ok := w.Next(); ok {
		t.Fatal("holder count movement without an edge reached the watcher")
	}

	release()
	testutil.RequireReceive(t, w.Ready(), waitTimeout, "liveness fall")
	if v, ok := w.Next(); !ok || v {
		t.Fatalf("Next() = (%v, %v), want (false, true)", v, ok)
	}
}
