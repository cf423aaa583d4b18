// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

// keyfoldd is the keyfold daemon. It owns the account registry, the
// item database, and the single gated observation that turns the
// active account into a stream of vault snapshots. Clients talk to it
// over a CBOR Unix socket; the keyfold CLI is the usual client.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/keyfold/keyfold/lib/clock"
	"github.com/keyfold/keyfold/lib/config"
	"github.com/keyfold/keyfold/lib/process"
	"github.com/keyfold/keyfold/lib/protocol"
	"github.com/keyfold/keyfold/lib/socket"
	"github.com/keyfold/keyfold/lib/version"
	"github.com/keyfold/keyfold/session"
	"github.com/keyfold/keyfold/stream"
	"github.com/keyfold/keyfold/vault"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath   string
		socketPath   string
		databasePath string
		logLevel     string
		showVersion  bool
	)
	flag.StringVar(&configPath, "config", "", "configuration file (default: $KEYFOLD_CONFIG, else built-in defaults)")
	flag.StringVar(&socketPath, "socket", "", "unix socket path (overrides the configuration)")
	flag.StringVar(&databasePath, "db", "", "item database path (overrides the configuration)")
	flag.StringVar(&logLevel, "log-level", "", "minimum log level: debug, info, warn, or error (overrides the configuration)")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Println("keyfoldd " + version.Info())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if socketPath != "" {
		cfg.Daemon.SocketPath = socketPath
	}
	if databasePath != "" {
		cfg.Vault.DatabasePath = databasePath
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}
	logger := cfg.NewLogger(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	daemon, err := newDaemon(cfg, clock.Real(), logger)
	if err != nil {
		return err
	}
	defer daemon.Close()

	// The gate loop is the daemon's heart: it reacts to account
	// switches and watcher demand, opening and closing the snapshot
	// observation. It runs for the daemon's whole life.
	gateDone := make(chan error, 1)
	go func() {
		gateDone <- daemon.gate.Run(ctx)
	}()

	server := socket.NewServer(cfg.Daemon.SocketPath, logger)
	daemon.registerActions(server)

	socketDone := make(chan error, 1)
	go func() {
		socketDone <- server.Serve(ctx)
	}()

	logger.Info("keyfoldd running",
		"socket", cfg.Daemon.SocketPath,
		"database", cfg.Vault.DatabasePath,
		"version", version.Short(),
	)

	// Wait for shutdown signal.
	<-ctx.Done()
	logger.Info("shutting down")

	// Wait for the socket server to drain active connections
	// (including any open watch and export streams), then for the
	// gate loop to tear down its observation.
	if err := <-socketDone; err != nil {
		logger.Error("socket server error", "error", err)
	}
	<-gateDone

	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// Daemon is the core state of keyfoldd: the account registry, the
// item store, and the demand-gated snapshot stream those two feed.
//
// The watcher count is protected by watcherMu because it requires
// increment/decrement (not a simple atomic store). It is read by the
// status handler and written by watch stream handlers on
// connect/disconnect.
type Daemon struct {
	config *config.Config
	clock  clock.Clock
	logger *slog.Logger

	startedAt time.Time

	sessions *session.Manager
	store    *vault.Store
	demand   *stream.Demand
	gate     *stream.Gate[session.AccountID, vault.Snapshot]

	watcherMu sync.Mutex
	watchers  int

	// exportsServed counts completed export streams, updated
	// atomically by export handlers for lock-free reads from the
	// status handler.
	exportsServed atomic.Uint64
}

func newDaemon(cfg *config.Config, clk clock.Clock, logger *slog.Logger) (*Daemon, error) {
	store, err := vault.OpenStore(vault.StoreConfig{
		Path:     cfg.Vault.DatabasePath,
		PoolSize: cfg.Vault.PoolSize,
		Clock:    clk,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	sessions, err := session.NewManager(session.ManagerConfig{
		Clock:  clk,
		Logger: logger,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	feed, err := vault.NewFeed(vault.FeedConfig{
		Store:  store,
		Logger: logger,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	demand := stream.NewDemand()
	gate, err := stream.NewGate(stream.GateConfig[session.AccountID, vault.Snapshot]{
		Demand:   demand,
		Identity: sessions.Identity(),
		Factory:  feed.Open,
		Logger:   logger,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	return &Daemon{
		config:    cfg,
		clock:     clk,
		logger:    logger,
		startedAt: clk.Now(),
		sessions:  sessions,
		store:     store,
		demand:    demand,
		gate:      gate,
	}, nil
}

// Close releases the daemon's resources. Call after the socket server
// and the gate loop have stopped.
func (d *Daemon) Close() error {
	return d.store.Close()
}

// registerActions registers the daemon's socket actions on the server.
func (d *Daemon) registerActions(server *socket.Server) {
	server.Handle("status", d.handleStatus)

	server.Handle("account.add", d.handleAccountAdd)
	server.Handle("account.list", d.handleAccountList)
	server.Handle("account.switch", d.handleAccountSwitch)
	server.Handle("account.deactivate", d.handleAccountDeactivate)
	server.Handle("account.remove", d.handleAccountRemove)

	server.Handle("item.put", d.handleItemPut)
	server.Handle("item.get", d.handleItemGet)
	server.Handle("item.list", d.handleItemList)
	server.Handle("item.delete", d.handleItemDelete)

	// Streaming actions: live snapshots and bundle export.
	server.HandleStream("watch", d.handleWatch)
	server.HandleStream("export", d.handleExport)
}

func (d *Daemon) handleStatus(ctx context.Context, _ []byte) (any, error) {
	d.watcherMu.Lock()
	watchers := d.watchers
	d.watcherMu.Unlock()

	response := protocol.Status{
		Version:       version.Short(),
		UptimeSeconds: d.clock.Now().Sub(d.startedAt).Seconds(),
		Accounts:      d.sessions.Count(),
		Watchers:      watchers,
		ExportsServed: d.exportsServed.Load(),
		Gate:          d.gate.Stats(),
	}
	if account, ok := d.sessions.Active(); ok {
		response.ActiveAccount = string(account.ID)
		items, err := d.store.ItemCount(ctx, account.ID)
		if err != nil {
			return nil, err
		}
		response.Items = items
	}
	return response, nil
}
