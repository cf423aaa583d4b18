// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// poolConfig holds the parameters for opening the item database.
type poolConfig struct {
	path      string
	poolSize  int
	logger    *slog.Logger
	onConnect func(conn *sqlite.Conn) error
}

// pool is a fixed-size pool of SQLite connections with the pragmas
// the store expects. It is safe for concurrent use; individual
// connections are not. Each goroutine must take its own connection
// and put it back when done.
type pool struct {
	inner  *sqlitex.Pool
	logger *slog.Logger
	path   string
}

// openPool creates the connection pool. The database file is created
// if it does not exist; connections are initialized lazily on first
// take.
func openPool(cfg poolConfig) (*pool, error) {
	inner, err := sqlitex.NewPool(cfg.path, sqlitex.PoolOptions{
		PoolSize: cfg.poolSize,
		PrepareConn: func(conn *sqlite.Conn) error {
			return prepareConnection(conn, cfg.onConnect)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("vault: opening %s: %w", cfg.path, err)
	}

	cfg.logger.Info("vault database opened",
		"path", cfg.path,
		"pool_size", cfg.poolSize,
	)

	return &pool{
		inner:  inner,
		logger: cfg.logger,
		path:   cfg.path,
	}, nil
}

// take borrows a connection. Blocks until one is available or ctx is
// cancelled. The caller must put the connection back, typically via
// defer.
func (p *pool) take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := p.inner.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("vault: take connection: %w", err)
	}
	return conn, nil
}

// put returns a connection to the pool. Safe to call with nil.
func (p *pool) put(conn *sqlite.Conn) {
	p.inner.Put(conn)
}

// close closes all connections. Blocks until borrowed connections are
// returned.
func (p *pool) close() error {
	if err := p.inner.Close(); err != nil {
		return fmt.Errorf("vault: closing %s: %w", p.path, err)
	}
	p.logger.Info("vault database closed", "path", p.path)
	return nil
}

// prepareConnection applies the store's pragmas and then the optional
// onConnect callback. Runs once per connection, on first use.
func prepareConnection(conn *sqlite.Conn, onConnect func(*sqlite.Conn) error) error {
	// WAL keeps readers unblocked while a mutation commits. The cache
	// is deliberately small; a vault is a few thousand rows at most.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-2048",
		"PRAGMA temp_store=MEMORY",
	}

	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("vault: %s: %w", pragma, err)
		}
	}

	if onConnect != nil {
		if err := onConnect(conn); err != nil {
			return err
		}
	}

	return nil
}
