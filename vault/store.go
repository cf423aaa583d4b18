// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/keyfold/keyfold/lib/clock"
	"github.com/keyfold/keyfold/session"
	"github.com/keyfold/keyfold/stream"
)

// Errors returned by store operations. Callers match them with
// errors.Is; the wrapped message carries the account and item.
var (
	ErrItemNotFound  = errors.New("vault: item not found")
	ErrDuplicateName = errors.New("vault: item name already in use")
)

const defaultPoolSize = 4

const schema = `
CREATE TABLE IF NOT EXISTS items (
	id         TEXT PRIMARY KEY,
	account_id TEXT NOT NULL,
	kind       TEXT NOT NULL,
	name       TEXT NOT NULL,
	payload    BLOB NOT NULL,
	digest     BLOB NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_items_account_name ON items(account_id, name);
CREATE INDEX IF NOT EXISTS idx_items_account ON items(account_id);
`

// StoreConfig holds the parameters for opening a store.
type StoreConfig struct {
	// Path is the filesystem path of the item database. The parent
	// directory must exist; the file is created on first open.
	Path string

	// PoolSize overrides the connection pool size. Zero means 4.
	// SQLite serializes writes regardless, and vault workloads are
	// light; extra connections only help concurrent readers.
	PoolSize int

	// Clock supplies item timestamps. Required.
	Clock clock.Clock

	// Logger receives operational messages. Required.
	Logger *slog.Logger
}

// Store persists items and tracks a live revision per account.
// Mutations run in immediate transactions; the revision cell for the
// touched account is updated only after the transaction commits, so
// watchers never observe a revision the database does not hold.
type Store struct {
	pool   *pool
	clock  clock.Clock
	logger *slog.Logger

	mu        sync.Mutex
	revisions map[session.AccountID]*stream.Value[Revision]
}

// OpenStore opens the item database, creating it if necessary, and
// seeds the revision cells from whatever items it already holds.
func OpenStore(cfg StoreConfig) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("vault: Path is required")
	}
	if cfg.Clock == nil {
		return nil, fmt.Errorf("vault: Clock is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("vault: Logger is required")
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = defaultPoolSize
	}

	databasePool, err := openPool(poolConfig{
		path:      cfg.Path,
		poolSize:  poolSize,
		logger:    cfg.Logger,
		onConnect: applySchema,
	})
	if err != nil {
		return nil, err
	}

	store := &Store{
		pool:      databasePool,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		revisions: make(map[session.AccountID]*stream.Value[Revision]),
	}

	if err := store.seedRevisions(context.Background()); err != nil {
		databasePool.close()
		return nil, err
	}
	return store, nil
}

func applySchema(conn *sqlite.Conn) error {
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("vault: applying schema: %w", err)
	}
	return nil
}

// seedRevisions recomputes every account's revision from the stored
// item digests. Runs once at open so a restarted daemon resumes with
// the revisions it had before shutdown.
func (s *Store) seedRevisions(ctx context.Context) error {
	conn, err := s.pool.take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.put(conn)

	perAccount := make(map[session.AccountID][]Digest)
	err = sqlitex.Execute(conn, `SELECT account_id, digest FROM items`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			accountID := session.AccountID(stmt.ColumnText(0))
			var digest Digest
			stmt.ColumnBytes(1, digest[:])
			perAccount[accountID] = append(perAccount[accountID], digest)
			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("vault: seeding revisions: %w", err)
	}

	items := 0
	s.mu.Lock()
	for accountID, digests := range perAccount {
		s.revisions[accountID] = stream.NewValue(ComputeRevision(digests))
		items += len(digests)
	}
	s.mu.Unlock()

	s.logger.Info("vault store opened",
		"accounts", len(perAccount),
		"items", items,
	)
	return nil
}

// RevisionValue returns the live revision cell for an account,
// creating it lazily. Watchers registered on the cell see every
// revision the account moves through while the store is open.
func (s *Store) RevisionValue(accountID session.AccountID) *stream.Value[Revision] {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.revisions[accountID]
	if !ok {
		value = stream.NewValue(Revision{})
		s.revisions[accountID] = value
	}
	return value
}

// Revision returns an account's current revision.
func (s *Store) Revision(accountID session.AccountID) Revision {
	return s.RevisionValue(accountID).Get()
}

// Put inserts or updates an item. A new item (empty ID) gets a
// generated ID and the current time as CreatedAt; an update keeps the
// stored CreatedAt and refreshes UpdatedAt. Names are unique within
// an account: a colliding insert or rename fails with
// ErrDuplicateName. Returns the item as stored.
func (s *Store) Put(ctx context.Context, item Item) (Item, error) {
	if err := item.validate(); err != nil {
		return Item{}, err
	}

	now := s.clock.Now().UTC()
	insert := item.ID == ""
	if insert {
		item.ID = uuid.NewString()
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	err := s.mutate(ctx, item.AccountID, func(conn *sqlite.Conn) error {
		if insert {
			return s.insertItem(conn, item)
		}
		return s.updateItem(conn, &item)
	})
	if err != nil {
		return Item{}, err
	}

	s.logger.Info("item stored",
		"account", item.AccountID,
		"item", item.ID,
		"name", item.Name,
		"kind", item.Kind,
	)
	return item, nil
}

func (s *Store) insertItem(conn *sqlite.Conn, item Item) error {
	taken, err := nameTaken(conn, item.AccountID, item.Name, "")
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("account %s: name %q: %w", item.AccountID, item.Name, ErrDuplicateName)
	}

	digest, err := ItemDigest(item)
	if err != nil {
		return err
	}

	err = sqlitex.Execute(conn, `INSERT INTO items
		(id, account_id, kind, name, payload, digest, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
		Args: []any{
			item.ID,
			string(item.AccountID),
			string(item.Kind),
			item.Name,
			item.Payload,
			digest[:],
			item.CreatedAt.UnixNano(),
			item.UpdatedAt.UnixNano(),
		},
	})
	if err != nil {
		return fmt.Errorf("vault: inserting item %s: %w", item.ID, err)
	}
	return nil
}

// updateItem rewrites an existing row. The item's CreatedAt is
// replaced with the stored value before the digest is computed, so
// callers cannot move creation time by passing a stale struct.
func (s *Store) updateItem(conn *sqlite.Conn, item *Item) error {
	var createdNanos int64
	found := false
	err := sqlitex.Execute(conn, `SELECT created_at FROM items WHERE id = ? AND account_id = ?`, &sqlitex.ExecOptions{
		Args: []any{item.ID, string(item.AccountID)},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			createdNanos = stmt.ColumnInt64(0)
			found = true
			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("vault: loading item %s: %w", item.ID, err)
	}
	if !found {
		return fmt.Errorf("account %s: item %s: %w", item.AccountID, item.ID, ErrItemNotFound)
	}
	item.CreatedAt = time.Unix(0, createdNanos).UTC()

	taken, err := nameTaken(conn, item.AccountID, item.Name, item.ID)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("account %s: name %q: %w", item.AccountID, item.Name, ErrDuplicateName)
	}

	digest, err := ItemDigest(*item)
	if err != nil {
		return err
	}

	err = sqlitex.Execute(conn, `UPDATE items
		SET kind = ?, name = ?, payload = ?, digest = ?, updated_at = ?
		WHERE id = ? AND account_id = ?`, &sqlitex.ExecOptions{
		Args: []any{
			string(item.Kind),
			item.Name,
			item.Payload,
			digest[:],
			item.UpdatedAt.UnixNano(),
			item.ID,
			string(item.AccountID),
		},
	})
	if err != nil {
		return fmt.Errorf("vault: updating item %s: %w", item.ID, err)
	}
	return nil
}

// nameTaken reports whether another item in the account already uses
// the name. excludeID skips the item being updated so a no-op rename
// does not collide with itself.
func nameTaken(conn *sqlite.Conn, accountID session.AccountID, name, excludeID string) (bool, error) {
	taken := false
	err := sqlitex.Execute(conn, `SELECT 1 FROM items WHERE account_id = ? AND name = ? AND id != ?`, &sqlitex.ExecOptions{
		Args: []any{string(accountID), name, excludeID},
		ResultFunc: func(*sqlite.Stmt) error {
			taken = true
			return nil
		},
	})
	if err != nil {
		return false, fmt.Errorf("vault: checking name %q: %w", name, err)
	}
	return taken, nil
}

// Delete removes an item. Returns ErrItemNotFound if the account does
// not hold it.
func (s *Store) Delete(ctx context.Context, accountID session.AccountID, itemID string) error {
	err := s.mutate(ctx, accountID, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `DELETE FROM items WHERE id = ? AND account_id = ?`, &sqlitex.ExecOptions{
			Args: []any{itemID, string(accountID)},
		})
		if err != nil {
			return fmt.Errorf("vault: deleting item %s: %w", itemID, err)
		}
		if conn.Changes() == 0 {
			return fmt.Errorf("account %s: item %s: %w", accountID, itemID, ErrItemNotFound)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("item deleted", "account", accountID, "item", itemID)
	return nil
}

// PurgeAccount deletes every item an account holds. Called when the
// account itself is removed; the account's revision returns to zero.
// Returns the number of items removed.
func (s *Store) PurgeAccount(ctx context.Context, accountID session.AccountID) (int, error) {
	removed := 0
	err := s.mutate(ctx, accountID, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `DELETE FROM items WHERE account_id = ?`, &sqlitex.ExecOptions{
			Args: []any{string(accountID)},
		})
		if err != nil {
			return fmt.Errorf("vault: purging account %s: %w", accountID, err)
		}
		removed = conn.Changes()
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("account purged", "account", accountID, "items", removed)
	return removed, nil
}

// mutate runs fn in an immediate transaction, recomputes the
// account's revision inside the same transaction, and publishes the
// new revision to the account's cell once the commit succeeds.
func (s *Store) mutate(ctx context.Context, accountID session.AccountID, fn func(conn *sqlite.Conn) error) error {
	conn, err := s.pool.take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.put(conn)

	revision, err := s.runTransaction(conn, accountID, fn)
	if err != nil {
		return err
	}

	s.RevisionValue(accountID).Set(revision)
	return nil
}

func (s *Store) runTransaction(conn *sqlite.Conn, accountID session.AccountID, fn func(conn *sqlite.Conn) error) (revision Revision, err error) {
	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return Revision{}, fmt.Errorf("vault: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	if err = fn(conn); err != nil {
		return Revision{}, err
	}

	revision, err = accountRevision(conn, accountID)
	if err != nil {
		return Revision{}, err
	}
	return revision, nil
}

// accountRevision folds the account's stored digests into a revision.
// Must run on a connection that sees the mutation being committed.
func accountRevision(conn *sqlite.Conn, accountID session.AccountID) (Revision, error) {
	var digests []Digest
	err := sqlitex.Execute(conn, `SELECT digest FROM items WHERE account_id = ?`, &sqlitex.ExecOptions{
		Args: []any{string(accountID)},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			var digest Digest
			stmt.ColumnBytes(0, digest[:])
			digests = append(digests, digest)
			return nil
		},
	})
	if err != nil {
		return Revision{}, fmt.Errorf("vault: reading digests for %s: %w", accountID, err)
	}
	return ComputeRevision(digests), nil
}

const itemColumns = `SELECT id, account_id, kind, name, payload, created_at, updated_at FROM items`

// Get returns an item by ID.
func (s *Store) Get(ctx context.Context, accountID session.AccountID, itemID string) (Item, error) {
	conn, err := s.pool.take(ctx)
	if err != nil {
		return Item{}, err
	}
	defer s.pool.put(conn)

	var item Item
	found := false
	err = sqlitex.Execute(conn, itemColumns+` WHERE id = ? AND account_id = ?`, &sqlitex.ExecOptions{
		Args: []any{itemID, string(accountID)},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			item = scanItem(stmt)
			found = true
			return nil
		},
	})
	if err != nil {
		return Item{}, fmt.Errorf("vault: loading item %s: %w", itemID, err)
	}
	if !found {
		return Item{}, fmt.Errorf("account %s: item %s: %w", accountID, itemID, ErrItemNotFound)
	}
	return item, nil
}

// GetByName returns an item by its account-unique name. This is the
// lookup the CLI uses; IDs appear in protocol messages.
func (s *Store) GetByName(ctx context.Context, accountID session.AccountID, name string) (Item, error) {
	conn, err := s.pool.take(ctx)
	if err != nil {
		return Item{}, err
	}
	defer s.pool.put(conn)

	var item Item
	found := false
	err = sqlitex.Execute(conn, itemColumns+` WHERE account_id = ? AND name = ?`, &sqlitex.ExecOptions{
		Args: []any{string(accountID), name},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			item = scanItem(stmt)
			found = true
			return nil
		},
	})
	if err != nil {
		return Item{}, fmt.Errorf("vault: loading item %q: %w", name, err)
	}
	if !found {
		return Item{}, fmt.Errorf("account %s: item %q: %w", accountID, name, ErrItemNotFound)
	}
	return item, nil
}

// List returns an account's items sorted by name. An account with no
// items yields an empty slice.
func (s *Store) List(ctx context.Context, accountID session.AccountID) ([]Item, error) {
	conn, err := s.pool.take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.put(conn)

	items := []Item{}
	err = sqlitex.Execute(conn, itemColumns+` WHERE account_id = ? ORDER BY name`, &sqlitex.ExecOptions{
		Args: []any{string(accountID)},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			items = append(items, scanItem(stmt))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("vault: listing items for %s: %w", accountID, err)
	}
	return items, nil
}

// ItemCount returns how many items an account holds.
func (s *Store) ItemCount(ctx context.Context, accountID session.AccountID) (int, error) {
	conn, err := s.pool.take(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.put(conn)

	count := 0
	err = sqlitex.Execute(conn, `SELECT COUNT(*) FROM items WHERE account_id = ?`, &sqlitex.ExecOptions{
		Args: []any{string(accountID)},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			count = int(stmt.ColumnInt64(0))
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("vault: counting items for %s: %w", accountID, err)
	}
	return count, nil
}

// Snapshot reads an account's items and revision in a single query,
// so the revision always matches the returned item set even while
// writers are active on other connections.
func (s *Store) Snapshot(ctx context.Context, accountID session.AccountID) (Snapshot, error) {
	conn, err := s.pool.take(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	defer s.pool.put(conn)

	items := []Item{}
	var digests []Digest
	err = sqlitex.Execute(conn, `SELECT id, account_id, kind, name, payload, digest, created_at, updated_at
		FROM items WHERE account_id = ? ORDER BY name`, &sqlitex.ExecOptions{
		Args: []any{string(accountID)},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			payload := make([]byte, stmt.ColumnLen(4))
			stmt.ColumnBytes(4, payload)

			var digest Digest
			stmt.ColumnBytes(5, digest[:])
			digests = append(digests, digest)

			items = append(items, Item{
				ID:        stmt.ColumnText(0),
				AccountID: session.AccountID(stmt.ColumnText(1)),
				Kind:      Kind(stmt.ColumnText(2)),
				Name:      stmt.ColumnText(3),
				Payload:   payload,
				CreatedAt: time.Unix(0, stmt.ColumnInt64(6)).UTC(),
				UpdatedAt: time.Unix(0, stmt.ColumnInt64(7)).UTC(),
			})
			return nil
		},
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("vault: snapshot for %s: %w", accountID, err)
	}

	return Snapshot{
		AccountID: accountID,
		Revision:  ComputeRevision(digests),
		Items:     items,
		TakenAt:   s.clock.Now().UTC(),
	}, nil
}

// Columns: id(0), account_id(1), kind(2), name(3), payload(4),
// created_at(5), updated_at(6)
func scanItem(stmt *sqlite.Stmt) Item {
	payload := make([]byte, stmt.ColumnLen(4))
	stmt.ColumnBytes(4, payload)

	return Item{
		ID:        stmt.ColumnText(0),
		AccountID: session.AccountID(stmt.ColumnText(1)),
		Kind:      Kind(stmt.ColumnText(2)),
		Name:      stmt.ColumnText(3),
		Payload:   payload,
		CreatedAt: time.Unix(0, stmt.ColumnInt64(5)).UTC(),
		UpdatedAt: time.Unix(0, stmt.ColumnInt64(6)).UTC(),
	}
}

// Close closes the database pool. In-flight operations finish first.
func (s *Store) Close() error {
	return s.pool.close()
}
