// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

// Package stream implements keyfold's demand-gated observation
// primitives: latest-value cells, a reference-counted demand handle,
// and the Gate combinator that runs at most one per-identity
// observation while output is demanded and an identity is active.
//
// # The Gate
//
// A Gate combines two inputs into one key:
//
//   - liveness: a boolean from a [Demand], true while anyone holds an
//     acquisition
//   - identity: an [Option] value, None while no identity is active
//
// Every input event recomputes the combined key. Equal consecutive
// keys do nothing. A distinct key first stops the current inner
// observation (switch-latest: the old channel is dropped before its
// context is cancelled, so no stale event can reach the output), then,
// if the key qualifies (live and identity present), invokes the
// [Factory] with a fresh activation-scoped context and forwards its
// events to all subscriptions.
//
// A non-qualifying key leaves the output open but idle; the gate never
// completes its output on its own. Factory errors and failure events
// end only that activation: the error is forwarded once and the gate
// waits for the next distinct key. Retry and debounce policy belong to
// the caller, typically by wrapping the factory.
//
// # Wiring
//
//	demand := stream.NewDemand()
//	identity := stream.NewValue(stream.None[session.AccountID]())
//	gate, err := stream.NewGate(stream.GateConfig[session.AccountID, vault.Snapshot]{
//	    Demand:   demand,
//	    Identity: identity,
//	    Factory:  feed.Open,
//	    Logger:   logger,
//	})
//	// ...
//	go gate.Run(ctx)
//
//	sub := gate.Subscribe() // acquires demand; may start the observation
//	defer sub.Cancel()      // releases it; last one out idles the gate
//	for {
//	    select {
//	    case event := <-sub.Events():
//	        // ...
//	    case <-ctx.Done():
//	        return
//	    }
//	}
//
// # Input delivery
//
// [Value] watchers are lossless: distinct transitions queue per
// watcher and are processed in order, so a rapid liveness toggle is
// handled as a full cancel and restart per transition rather than
// being conflated away. Conflation happens only where it is safe, at
// the source, when a value equal to the current one is set.
package stream
