// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/keyfold/keyfold/session"
	"github.com/keyfold/keyfold/stream"
)

// Snapshot is one consistent view of an account's vault: the item set
// and the revision that set folds into. Consecutive snapshots on a
// feed always carry different revisions.
type Snapshot struct {
	AccountID session.AccountID `json:"account_id"`
	Revision  Revision          `json:"revision"`
	Items     []Item            `json:"items"`
	TakenAt   time.Time         `json:"taken_at"`
}

// FeedConfig holds the parameters for a feed.
type FeedConfig struct {
	// Store supplies snapshots and revision cells. Required.
	Store *Store

	// Logger receives operational messages. Required.
	Logger *slog.Logger
}

// Feed turns the store's per-account revision cells into snapshot
// streams. Open satisfies stream.Factory, so a feed plugs directly
// into a gate as the observation it activates per account.
type Feed struct {
	store  *Store
	logger *slog.Logger
}

// NewFeed validates the configuration and returns a feed.
func NewFeed(cfg FeedConfig) (*Feed, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("vault: Store is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("vault: Logger is required")
	}
	return &Feed{store: cfg.Store, logger: cfg.Logger}, nil
}

// Open starts a snapshot stream for one account. The channel carries
// an initial snapshot followed by one snapshot per revision change,
// coalescing bursts to the latest state, and closes when the producer
// stops: on ctx cancellation, or after a store error has been
// delivered as a failure event.
func (f *Feed) Open(ctx context.Context, accountID session.AccountID) (<-chan stream.Event[Snapshot], error) {
	snapshot, err := f.store.Snapshot(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("vault: opening feed for %s: %w", accountID, err)
	}

	events := make(chan stream.Event[Snapshot], 1)
	events <- stream.Event[Snapshot]{Value: snapshot}

	watcher, current := f.store.RevisionValue(accountID).Watch()
	f.logger.Debug("feed opened", "account", accountID, "revision", snapshot.Revision)

	go f.follow(ctx, accountID, snapshot.Revision, current, watcher, events)
	return events, nil
}

// follow forwards one snapshot per revision change. The initial
// snapshot and the watcher registration are not atomic, so a revision
// that lands between them is caught by comparing the watcher's
// starting value against the snapshot already sent.
func (f *Feed) follow(ctx context.Context, accountID session.AccountID, sent, current Revision, watcher *stream.Watcher[Revision], events chan<- stream.Event[Snapshot]) {
	defer close(events)
	defer watcher.Close()

	ok := true
	if current != sent {
		if sent, ok = f.emit(ctx, accountID, sent, events); !ok {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-watcher.Ready():
			changed := false
			for {
				if _, more := watcher.Next(); !more {
					break
				}
				changed = true
			}
			if !changed {
				continue
			}
			if sent, ok = f.emit(ctx, accountID, sent, events); !ok {
				return
			}
		}
	}
}

// emit queries the current snapshot and sends it unless its revision
// was already sent (a queued transition can be stale when a mutation
// raced an earlier query). Returns false when the stream should stop:
// the context was cancelled or the store failed.
func (f *Feed) emit(ctx context.Context, accountID session.AccountID, sent Revision, events chan<- stream.Event[Snapshot]) (Revision, bool) {
	snapshot, err := f.store.Snapshot(ctx, accountID)
	if err != nil {
		f.logger.Warn("feed snapshot failed", "account", accountID, "error", err)
		f.send(ctx, events, stream.Event[Snapshot]{Err: fmt.Errorf("vault: feed for %s: %w", accountID, err)})
		return sent, false
	}
	if snapshot.Revision == sent {
		return sent, true
	}
	return snapshot.Revision, f.send(ctx, events, stream.Event[Snapshot]{Value: snapshot})
}

func (f *Feed) send(ctx context.Context, events chan<- stream.Event[Snapshot], event stream.Event[Snapshot]) bool {
	select {
	case events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}
