// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/keyfold/keyfold/lib/testutil"
)

const (
	// waitTimeout is the safety valve for things that must happen.
	waitTimeout = 5 * time.Second

	// quietWindow is how long a channel is watched for things that
	// must NOT happen.
	quietWindow = 100 * time.Millisecond
)

// testActivation is one factory invocation handed back to the test:
// the send side of the observation plus its activation context.
type testActivation struct {
	identity string
	events   chan Event[string]
	ctx      context.Context
}

func (a *testActivation) emit(t *testing.T, value string) {
	t.Helper()
	testutil.RequireSend(t, a.events, Event[string]{Value: value}, waitTimeout, "emit %q", value)
}

func (a *testActivation) fail(t *testing.T, err error) {
	t.Helper()
	testutil.RequireSend(t, a.events, Event[string]{Err: err}, waitTimeout, "emit failure")
}

// testFactory opens observations the test drives by hand. Every
// invocation that succeeds is delivered on activations.
type testFactory struct {
	activations chan *testActivation
	invocations atomic.Int32

	mu      sync.Mutex
	openErr error
}

func newTestFactory() *testFactory {
	return &testFactory{activations: make(chan *testActivation, 8)}
}

func (f *testFactory) setOpenError(err error) {
	f.mu.Lock()
	f.openErr = err
	f.mu.Unlock()
}

func (f *testFactory) open(ctx context.Context, identity string) (<-chan Event[string], error) {
	f.invocations.Add(1)
	f.mu.Lock()
	err := f.openErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	activation := &testActivation{
		identity: identity,
		events:   make(chan Event[string], 8),
		ctx:      ctx,
	}
	f.activations <- activation
	return activation.events, nil
}

// gateHarness runs a gate over test-controlled inputs and shuts it
// down with the test.
type gateHarness struct {
	t        *testing.T
	demand   *Demand
	identity *Value[Option[string]]
	factory  *testFactory
	gate     *Gate[string, string]
	cancel   context.CancelFunc
	done     chan struct{}
}

func newGateHarness(t *testing.T) *gateHarness {
	t.Helper()

	h := &gateHarness{
		t:        t,
		demand:   NewDemand(),
		identity: NewValue(None[string]()),
		factory:  newTestFactory(),
	}
	gate, err := NewGate(GateConfig[string, string]{
		Demand:   h.demand,
		Identity: h.identity,
		Factory:  h.factory.open,
		Logger:   slog.Default(),
	})
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	h.gate = gate

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan struct{})
	go func() {
		defer close(h.done)
		gate.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		testutil.RequireClosed(t, h.done, waitTimeout, "gate loop shutdown")
	})
	return h
}

func (h *gateHarness) awaitActivation() *testActivation {
	h.t.Helper()
	return testutil.RequireReceive(h.t, h.factory.activations, waitTimeout, "factory activation")
}

func (h *gateHarness) expectNoActivation() {
	h.t.Helper()
	testutil.RequireNoReceive(h.t, h.factory.activations, quietWindow, "factory must not be invoked")
}

func receiveValue(t *testing.T, sub *Subscription[string]) string {
	t.Helper()
	event := testutil.RequireReceive(t, sub.Events(), waitTimeout, "subscription event")
	if event.Err != nil {
		t.Fatalf("expected value event, got error %v", event.Err)
	}
	return event.Value
}

// awaitStats polls the gate's stats until want accepts them, with a
// real-time safety valve. Counters settle asynchronously after their
// triggering event, so assertions on them are eventual.
func awaitStats(t *testing.T, gate *Gate[string, string], what string, want func(GateStats) bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !want(gate.Stats()) {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s: stats = %+v", what, gate.Stats())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestGateIdleWithoutIdentity(t *testing.T) {
	h := newGateHarness(t)
	sub := h.gate.Subscribe()
	defer sub.Cancel()

	// Demand is up but no identity is active: the factory must not
	// run and the output must stay open and silent.
	h.expectNoActivation()
	testutil.RequireNoReceive(t, sub.Events(), quietWindow, "no events while idle")
	select {
	case <-sub.Done():
		t.Fatal("subscription must stay open while the gate is idle")
	default:
	}

	awaitStats(t, h.gate, "idle under demand", func(s GateStats) bool {
		return s.Live && !s.IdentityPresent
	})
	if n := h.gate.Stats().Activations; n != 0 {
		t.Fatalf("Activations = %d, want 0", n)
	}
}

func TestGateDeliversSingleEmissionThenStaysArmed(t *testing.T) {
	h := newGateHarness(t)
	sub := h.gate.Subscribe() // liveness rises; identity still absent
	defer sub.Cancel()

	h.identity.Set(Some("u1"))
	activation := h.awaitActivation()
	if activation.identity != "u1" {
		t.Fatalf("factory invoked with %q, want %q", activation.identity, "u1")
	}

	activation.emit(t, "x")
	close(activation.events)

	if got := receiveValue(t, sub); got != "x" {
		t.Fatalf("received %q, want %q", got, "x")
	}
	testutil.RequireNoReceive(t, sub.Events(), quietWindow, "exactly one delivery")

	awaitStats(t, h.gate, "completion recorded", func(s GateStats) bool {
		return s.Completions == 1
	})
	// A completed observation is not restarted until the key changes.
	h.expectNoActivation()
	if n := h.factory.invocations.Load(); n != 1 {
		t.Fatalf("factory invoked %d times, want 1", n)
	}
}

func TestGateSwitchesLatestOnIdentityChange(t *testing.T) {
	h := newGateHarness(t)
	sub := h.gate.Subscribe()
	defer sub.Cancel()

	h.identity.Set(Some("a"))
	first := h.awaitActivation()
	first.emit(t, "a1")
	if got := receiveValue(t, sub); got != "a1" {
		t.Fatalf("received %q, want %q", got, "a1")
	}

	h.identity.Set(Some("b"))
	second := h.awaitActivation()
	if second.identity != "b" {
		t.Fatalf("second activation for %q, want %q", second.identity, "b")
	}
	testutil.RequireClosed(t, first.ctx.Done(), waitTimeout, "replaced activation cancelled")

	// The replaced observation keeps talking into the void; nothing
	// it says after the switch may reach the output.
	first.events <- Event[string]{Value: "a2"}
	second.emit(t, "b1")

	if got := receiveValue(t, sub); got != "b1" {
		t.Fatalf("received %q after switch, want %q", got, "b1")
	}
	testutil.RequireNoReceive(t, sub.Events(), quietWindow, "no emission from the replaced observation")
}

func TestGateDemandDropCancelsAndResubscribeRestartsFreshly(t *testing.T) {
	h := newGateHarness(t)
	sub := h.gate.Subscribe()

	h.identity.Set(Some("u1"))
	first := h.awaitActivation()
	first.emit(t, "v1")
	if got := receiveValue(t, sub); got != "v1" {
		t.Fatalf("received %q, want %q", got, "v1")
	}

	// Last holder gone: the observation is cancelled, not paused.
	sub.Cancel()
	testutil.RequireClosed(t, first.ctx.Done(), waitTimeout, "activation cancelled when demand drops")

	// A new subscription re-evaluates the current key and invokes the
	// factory again; the first observation is never resumed.
	second := h.gate.Subscribe()
	defer second.Cancel()
	replacement := h.awaitActivation()
	if replacement.identity != "u1" {
		t.Fatalf("restart activation for %q, want %q", replacement.identity, "u1")
	}
	replacement.emit(t, "v2")
	if got := receiveValue(t, second); got != "v2" {
		t.Fatalf("received %q, want %q", got, "v2")
	}
	if n := h.factory.invocations.Load(); n != 2 {
		t.Fatalf("factory invoked %d times, want 2", n)
	}
	testutil.RequireNoReceive(t, sub.Events(), quietWindow, "cancelled subscription receives nothing")
}

func TestGateSuppressesRedundantTransitions(t *testing.T) {
	h := newGateHarness(t)
	sub := h.gate.Subscribe()
	defer sub.Cancel()

	h.identity.Set(Some("u1"))
	first := h.awaitActivation()

	// Same identity again: conflated at the source.
	h.identity.Set(Some("u1"))
	// Holder count movement above zero: no liveness edge.
	release := h.demand.Acquire()
	releaseMore := h.demand.Acquire()
	release()
	releaseMore()
	// An extra subscriber is also not an edge while one holder remains.
	extra := h.gate.Subscribe()
	extra.Cancel()

	h.expectNoActivation()
	select {
	case <-first.ctx.Done():
		t.Fatal("activation cancelled by redundant transitions")
	default:
	}
	if n := h.factory.invocations.Load(); n != 1 {
		t.Fatalf("factory invoked %d times, want 1", n)
	}
}

func TestGateShutdownCancelsObservation(t *testing.T) {
	h := newGateHarness(t)
	sub := h.gate.Subscribe()
	defer sub.Cancel()

	h.identity.Set(Some("u1"))
	activation := h.awaitActivation()

	h.cancel()
	testutil.RequireClosed(t, activation.ctx.Done(), waitTimeout, "inner context cancelled on shutdown")
	testutil.RequireClosed(t, h.done, waitTimeout, "run loop exits")
}

func TestGateForwardsOpenFailureWithoutRetry(t *testing.T) {
	h := newGateHarness(t)
	openErr := errors.New("store unavailable")
	h.factory.setOpenError(openErr)

	sub := h.gate.Subscribe()
	defer sub.Cancel()
	h.identity.Set(Some("u1"))

	event := testutil.RequireReceive(t, sub.Events(), waitTimeout, "failure event")
	if !errors.Is(event.Err, openErr) {
		t.Fatalf("event error = %v, want %v", event.Err, openErr)
	}

	// The same key is not retried.
	h.expectNoActivation()
	if n := h.factory.invocations.Load(); n != 1 {
		t.Fatalf("factory invoked %d times, want 1", n)
	}

	// The next distinct key evaluates freshly.
	h.factory.setOpenError(nil)
	h.identity.Set(Some("u2"))
	activation := h.awaitActivation()
	if activation.identity != "u2" {
		t.Fatalf("activation for %q, want %q", activation.identity, "u2")
	}
}

func TestGateFailureEventEndsActivation(t *testing.T) {
	h := newGateHarness(t)
	sub := h.gate.Subscribe()
	defer sub.Cancel()

	h.identity.Set(Some("u1"))
	activation := h.awaitActivation()

	streamErr := errors.New("sync interrupted")
	activation.fail(t, streamErr)

	event := testutil.RequireReceive(t, sub.Events(), waitTimeout, "failure forwarded")
	if !errors.Is(event.Err, streamErr) {
		t.Fatalf("event error = %v, want %v", event.Err, streamErr)
	}
	testutil.RequireClosed(t, activation.ctx.Done(), waitTimeout, "failed activation torn down")
	h.expectNoActivation()

	h.identity.Set(Some("u2"))
	if second := h.awaitActivation(); second.identity != "u2" {
		t.Fatalf("activation for %q, want %q", second.identity, "u2")
	}
}

func TestGateStartsUnderPreexistingKey(t *testing.T) {
	// Inputs qualify before Run is ever called: the startup key
	// counts as a transition.
	demand := NewDemand()
	release := demand.Acquire()
	defer release()
	identity := NewValue(Some("u1"))
	factory := newTestFactory()

	gate, err := NewGate(GateConfig[string, string]{
		Demand:   demand,
		Identity: identity,
		Factory:  factory.open,
		Logger:   slog.Default(),
	})
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		gate.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		testutil.RequireClosed(t, done, waitTimeout, "gate loop shutdown")
	})

	activation := testutil.RequireReceive(t, factory.activations, waitTimeout, "startup activation")
	if activation.identity != "u1" {
		t.Fatalf("activation for %q, want %q", activation.identity, "u1")
	}
}

func TestGateFansOutToAllSubscribers(t *testing.T) {
	h := newGateHarness(t)
	first := h.gate.Subscribe()
	defer first.Cancel()
	second := h.gate.Subscribe()
	defer second.Cancel()

	h.identity.Set(Some("u1"))
	activation := h.awaitActivation()
	activation.emit(t, "shared")

	if got := receiveValue(t, first); got != "shared" {
		t.Fatalf("first subscriber received %q, want %q", got, "shared")
	}
	if got := receiveValue(t, second); got != "shared" {
		t.Fatalf("second subscriber received %q, want %q", got, "shared")
	}
	if n := h.factory.invocations.Load(); n != 1 {
		t.Fatalf("factory invoked %d times, want 1", n)
	}
}

// newIdleGate builds a gate that is never run, for exercising the
// fan-out path directly.
func newIdleGate(t *testing.T, buffer int) *Gate[string, string] {
	t.Helper()
	gate, err := NewGate(GateConfig[string, string]{
		Demand:   NewDemand(),
		Identity: NewValue(None[string]()),
		Factory: func(ctx context.Context, identity string) (<-chan Event[string], error) {
			return nil, errors.New("not used")
		},
		Logger:           slog.Default(),
		SubscriberBuffer: buffer,
	})
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	return gate
}

func TestGateForwardDropsWhenSubscriberFull(t *testing.T) {
	gate := newIdleGate(t, 1)
	sub := gate.Subscribe()
	defer sub.Cancel()

	gate.forward(Event[string]{Value: "kept"})
	gate.forward(Event[string]{Value: "overflow-1"})
	gate.forward(Event[string]{Value: "overflow-2"})

	if got := sub.Dropped(); got != 2 {
		t.Fatalf("Dropped() = %d, want 2", got)
	}
	if stats := gate.Stats(); stats.DroppedEvents != 2 {
		t.Fatalf("DroppedEvents = %d, want 2", stats.DroppedEvents)
	}
	if got := receiveValue(t, sub); got != "kept" {
		t.Fatalf("buffered event = %q, want %q", got, "kept")
	}
}

func TestGateForwardPrunesAbandonedSubscriptions(t *testing.T) {
	gate := newIdleGate(t, 0)
	kept := gate.Subscribe()
	defer kept.Cancel()
	abandoned := gate.Subscribe()
	// Simulate a consumer that vanished without calling Cancel.
	close(abandoned.done)

	gate.forward(Event[string]{Value: "v"})

	if got := receiveValue(t, kept); got != "v" {
		t.Fatalf("kept subscriber received %q, want %q", got, "v")
	}
	gate.subscriberMu.Lock()
	n := len(gate.subscribers)
	gate.subscriberMu.Unlock()
	if n != 1 {
		t.Fatalf("registry holds %d subscriptions, want 1", n)
	}
}

func TestSubscriptionCancelIdempotent(t *testing.T) {
	gate := newIdleGate(t, 0)
	sub := gate.Subscribe()
	sub.Cancel()
	sub.Cancel()

	if stats := gate.Stats(); stats.Subscribers != 0 {
		t.Fatalf("Subscribers = %d, want 0", stats.Subscribers)
	}
}

func TestNewGateValidatesConfig(t *testing.T) {
	factory := func(ctx context.Context, identity string) (<-chan Event[string], error) {
		return nil, errors.New("not used")
	}
	valid := func() GateConfig[string, string] {
		return GateConfig[string, string]{
			Demand:   NewDemand(),
			Identity: NewValue(None[string]()),
			Factory:  factory,
			Logger:   slog.Default(),
		}
	}

	if _, err := NewGate(valid()); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*GateConfig[string, string])
	}{
		{"missing demand", func(c *GateConfig[string, string]) { c.Demand = nil }},
		{"missing identity", func(c *GateConfig[string, string]) { c.Identity = nil }},
		{"missing factory", func(c *GateConfig[string, string]) { c.Factory = nil }},
		{"missing logger", func(c *GateConfig[string, string]) { c.Logger = nil }},
	}
	for _, tc := range cases {
		cfg := valid()
		tc.mutate(&cfg)
		if _, err := NewGate(cfg); err == nil {
			t.Errorf("%s: NewGate accepted invalid config", tc.name)
		}
	}
}
