// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// DefaultSubscriberBuffer is the event channel capacity given to each
// subscription. Vault snapshots arrive at human cadence, so 64 slots
// is a deep backlog; a subscriber that still overflows has its events
// dropped and detects the gap through snapshot revisions.
const DefaultSubscriberBuffer = 64

// Event is one element of a Gate's output: a value, or the failure
// that ended an activation.
type Event[R any] struct {
	Value R
	Err   error
}

// Factory opens the per-identity observation. It is invoked only with
// a present identity, on the gate's own goroutine, with a context
// scoped to the activation.
//
// The returned channel is owned by the factory's stream: close it to
// signal completion, send an Event with Err set to signal failure.
// Sends must select on ctx.Done() so the stream stops promptly when
// the gate cancels the activation; once cancelled, the gate no longer
// reads from the channel.
type Factory[K comparable, R any] func(ctx context.Context, identity K) (<-chan Event[R], error)

// GateConfig carries the inputs of a Gate. Demand, Identity, Factory,
// and Logger are required.
type GateConfig[K comparable, R any] struct {
	// Demand is the liveness input. Subscriptions acquire it for
	// their lifetime; other holders may acquire it independently.
	Demand *Demand

	// Identity is the identity input, None while no identity is
	// active.
	Identity *Value[Option[K]]

	// Factory opens one observation per qualifying key.
	Factory Factory[K, R]

	// Logger receives activation lifecycle logs.
	Logger *slog.Logger

	// SubscriberBuffer overrides DefaultSubscriberBuffer when > 0.
	SubscriberBuffer int
}

// Gate runs at most one inner observation, keyed by the combination of
// liveness and identity. Every distinct transition of the combined
// key tears the current observation down; transitions to a qualifying
// key (live, identity present) then open a fresh one through the
// factory. Consecutive equal keys are suppressed, so an input event
// that does not change the combination restarts nothing.
//
// The output side never completes on its own: while the key does not
// qualify the gate is simply idle. Activation failures are forwarded
// once to current subscribers and end that activation; the gate does
// not retry until the key next changes. Retry, like debounce, belongs
// to a layer above.
//
// All key handling happens on the goroutine that called Run. Inputs
// arrive through lossless Value watchers, so a burst of toggles is
// processed as that many cancels and restarts, in order.
type Gate[K comparable, R any] struct {
	demand   *Demand
	identity *Value[Option[K]]
	factory  Factory[K, R]
	logger   *slog.Logger
	buffer   int

	running atomic.Bool

	subscriberMu sync.Mutex
	subscribers  []*Subscription[R]

	currentKey  atomic.Pointer[gateKey[K]]
	observing   atomic.Bool
	activations atomic.Uint64
	failures    atomic.Uint64
	completions atomic.Uint64
	dropped     atomic.Uint64
}

// gateKey is the combined gate key. Comparable as a whole; equality of
// consecutive keys is what "redundant" means.
type gateKey[K comparable] struct {
	live     bool
	identity Option[K]
}

// GateStats is a point-in-time snapshot of a Gate's state and
// counters, served by the daemon's status action.
type GateStats struct {
	Live            bool   `json:"live"`
	IdentityPresent bool   `json:"identity_present"`
	Observing       bool   `json:"observing"`
	Subscribers     int    `json:"subscribers"`
	Activations     uint64 `json:"activations"`
	Failures        uint64 `json:"failures"`
	Completions     uint64 `json:"completions"`
	DroppedEvents   uint64 `json:"dropped_events"`
}

// NewGate validates cfg and returns an unstarted Gate. Call Run to
// start it.
func NewGate[K comparable, R any](cfg GateConfig[K, R]) (*Gate[K, R], error) {
	if cfg.Demand == nil {
		return nil, fmt.Errorf("stream: GateConfig.Demand is required")
	}
	if cfg.Identity == nil {
		return nil, fmt.Errorf("stream: GateConfig.Identity is required")
	}
	if cfg.Factory == nil {
		return nil, fmt.Errorf("stream: GateConfig.Factory is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("stream: GateConfig.Logger is required")
	}
	buffer := cfg.SubscriberBuffer
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Gate[K, R]{
		demand:   cfg.Demand,
		identity: cfg.Identity,
		factory:  cfg.Factory,
		logger:   cfg.Logger,
		buffer:   buffer,
	}, nil
}

// loopState is the mutable state of a running gate. Owned exclusively
// by the Run goroutine.
type loopState[K comparable, R any] struct {
	lastKey gateKey[K]
	hasKey  bool

	inner       <-chan Event[R]
	cancelInner context.CancelFunc
}

// Run processes input transitions and forwards inner events until ctx
// is cancelled. Cancellation tears down any live observation before
// returning; Run itself returns nil on shutdown. Run may be called
// once per Gate.
func (g *Gate[K, R]) Run(ctx context.Context) error {
	if !g.running.CompareAndSwap(false, true) {
		panic("stream: Gate.Run called twice")
	}

	liveWatcher, live := g.demand.Live().Watch()
	defer liveWatcher.Close()
	identityWatcher, identity := g.identity.Watch()
	defer identityWatcher.Close()

	state := &loopState[K, R]{}
	defer g.stopInner(state)

	// The key current at startup counts as a transition: a gate
	// started under demand with an identity already active opens its
	// observation immediately.
	g.applyKey(ctx, state, gateKey[K]{live: live, identity: identity})

	for {
		select {
		case <-liveWatcher.Ready():
			for {
				next, ok := liveWatcher.Next()
				if !ok {
					break
				}
				live = next
				g.applyKey(ctx, state, gateKey[K]{live: live, identity: identity})
			}

		case <-identityWatcher.Ready():
			for {
				next, ok := identityWatcher.Next()
				if !ok {
					break
				}
				identity = next
				g.applyKey(ctx, state, gateKey[K]{live: live, identity: identity})
			}

		case event, ok := <-state.inner:
			if !ok {
				// The observation completed. The gate stays armed on
				// the unchanged key; only a key change starts a new
				// observation.
				g.stopInner(state)
				g.completions.Add(1)
				g.logger.Debug("observation completed", "identity", state.lastKey.identity)
				continue
			}
			if event.Err != nil {
				g.failures.Add(1)
				g.logger.Warn("observation failed",
					"identity", state.lastKey.identity,
					"error", event.Err,
				)
				g.forward(event)
				g.stopInner(state)
				continue
			}
			g.forward(event)

		case <-ctx.Done():
			return nil
		}
	}
}

// applyKey processes one combined-key evaluation. Equal consecutive
// keys are suppressed. A distinct key always stops the current
// observation first, so nothing from the old activation can reach the
// output once the switch has begun; a qualifying key then opens the
// next observation synchronously.
func (g *Gate[K, R]) applyKey(ctx context.Context, state *loopState[K, R], key gateKey[K]) {
	if state.hasKey && key == state.lastKey {
		return
	}
	state.lastKey = key
	state.hasKey = true
	g.currentKey.Store(&key)

	g.stopInner(state)

	identity, present := key.identity.Get()
	if !key.live || !present {
		g.logger.Debug("gate idle", "live", key.live, "identity", key.identity)
		return
	}

	innerCtx, cancel := context.WithCancel(ctx)
	events, err := g.factory(innerCtx, identity)
	if err != nil {
		cancel()
		g.failures.Add(1)
		g.logger.Warn("activation failed", "identity", key.identity, "error", err)
		// The failure is output, scoped to this activation. The key
		// stays current, so the gate waits for the next distinct key
		// rather than retrying.
		g.forward(Event[R]{Err: err})
		return
	}
	state.inner = events
	state.cancelInner = cancel
	g.observing.Store(true)
	g.activations.Add(1)
	g.logger.Debug("observation started", "identity", key.identity)
}

// stopInner detaches the current observation. The channel reference is
// dropped before the context is cancelled: from this point the loop
// cannot read another event from it, regardless of what the stream's
// goroutine does with the cancellation.
func (g *Gate[K, R]) stopInner(state *loopState[K, R]) {
	state.inner = nil
	if state.cancelInner != nil {
		state.cancelInner()
		state.cancelInner = nil
	}
	g.observing.Store(false)
}

// forward fans an event out to all current subscriptions. Sends never
// block the loop: a subscription with a full channel has the event
// dropped and counted. Cancelled subscriptions found along the way are
// removed, reverse iteration keeping unvisited indexes stable.
func (g *Gate[K, R]) forward(event Event[R]) {
	g.subscriberMu.Lock()
	defer g.subscriberMu.Unlock()

	subscribers := g.subscribers
	for i := len(subscribers) - 1; i >= 0; i-- {
		subscription := subscribers[i]
		select {
		case <-subscription.done:
			subscribers = append(subscribers[:i], subscribers[i+1:]...)
			continue
		default:
		}
		select {
		case subscription.events <- event:
		default:
			subscription.dropped.Add(1)
			g.dropped.Add(1)
		}
	}
	g.subscribers = subscribers
}

// Subscribe attaches an output consumer and acquires the gate's
// demand for the subscription's lifetime. The subscriber is registered
// before demand rises, so events from an activation triggered by this
// very subscription cannot be missed.
func (g *Gate[K, R]) Subscribe() *Subscription[R] {
	subscription := &Subscription[R]{
		events: make(chan Event[R], g.buffer),
		done:   make(chan struct{}),
	}
	subscription.unregister = func() { g.removeSubscriber(subscription) }

	g.subscriberMu.Lock()
	g.subscribers = append(g.subscribers, subscription)
	g.subscriberMu.Unlock()

	subscription.release = g.demand.Acquire()
	return subscription
}

// removeSubscriber drops a subscription from the registry.
func (g *Gate[K, R]) removeSubscriber(subscription *Subscription[R]) {
	g.subscriberMu.Lock()
	defer g.subscriberMu.Unlock()
	for i, existing := range g.subscribers {
		if existing == subscription {
			g.subscribers = append(g.subscribers[:i], g.subscribers[i+1:]...)
			break
		}
	}
}

// Stats returns a snapshot of the gate's current state and counters.
func (g *Gate[K, R]) Stats() GateStats {
	stats := GateStats{
		Observing:     g.observing.Load(),
		Activations:   g.activations.Load(),
		Failures:      g.failures.Load(),
		Completions:   g.completions.Load(),
		DroppedEvents: g.dropped.Load(),
	}
	if key := g.currentKey.Load(); key != nil {
		stats.Live = key.live
		stats.IdentityPresent = key.identity.Present()
	}
	g.subscriberMu.Lock()
	stats.Subscribers = len(g.subscribers)
	g.subscriberMu.Unlock()
	return stats
}

// Subscription is one attached output consumer.
//
// The events channel is never closed; consumers select on Events
// together with Done (or their own context). Cancelling releases the
// subscription's demand, which idles the gate when it was the last
// interest held.
type Subscription[R any] struct {
	events     chan Event[R]
	done       chan struct{}
	unregister func()
	release    func()
	cancelOnce sync.Once
	dropped    atomic.Uint64
}

// Events is the subscription's output. Delivery is best-effort beyond
// the channel buffer; see Dropped.
func (s *Subscription[R]) Events() <-chan Event[R] {
	return s.events
}

// Done is closed by Cancel.
func (s *Subscription[R]) Done() <-chan struct{} {
	return s.done
}

// Dropped reports how many events were dropped because the channel
// was full.
func (s *Subscription[R]) Dropped() uint64 {
	return s.dropped.Load()
}

// Cancel detaches the subscription and releases its demand.
// Idempotent. A consumer that resubscribes later gets a fresh
// evaluation of whatever key is current then, never a resumed stream.
func (s *Subscription[R]) Cancel() {
	s.cancelOnce.Do(func() {
		close(s.done)
		s.unregister()
		s.release()
	})
}
