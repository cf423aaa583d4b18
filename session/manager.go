// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/keyfold/keyfold/lib/clock"
	"github.com/keyfold/keyfold/stream"
)

// ErrUnknownAccount is returned for operations on an account ID that
// is not registered.
var ErrUnknownAccount = errors.New("session: unknown account")

// AccountID identifies a signed-in account. The canonical form is a
// lowercase UUID string.
type AccountID string

// ParseAccountID validates s and returns it in canonical form.
func ParseAccountID(s string) (AccountID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("session: invalid account ID %q: %w", s, err)
	}
	return AccountID(id.String()), nil
}

// Account is a registered identity.
type Account struct {
	ID        AccountID `json:"id"`
	Label     string    `json:"label"`
	ServerURL string    `json:"server_url,omitempty"`

	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// ManagerConfig carries the manager's dependencies. Both fields are
// required.
type ManagerConfig struct {
	Clock  clock.Clock
	Logger *slog.Logger
}

// Manager is the account registry and the owner of the identity
// stream. Safe for concurrent use.
type Manager struct {
	clock  clock.Clock
	logger *slog.Logger

	mu       sync.Mutex
	accounts map[AccountID]Account
	active   AccountID // empty when no account is active

	identity *stream.Value[stream.Option[AccountID]]
}

// NewManager returns an empty registry with no active account.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Clock == nil {
		return nil, fmt.Errorf("session: ManagerConfig.Clock is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("session: ManagerConfig.Logger is required")
	}
	return &Manager{
		clock:    cfg.Clock,
		logger:   cfg.Logger,
		accounts: make(map[AccountID]Account),
		identity: stream.NewValue(stream.None[AccountID]()),
	}, nil
}

// Identity exposes the active account as a stream input: Some(id)
// while an account is active, None otherwise. Consecutive switches to
// the same account are conflated at this source.
func (m *Manager) Identity() *stream.Value[stream.Option[AccountID]] {
	return m.identity
}

// Add registers a new account and makes it active, matching the
// sign-in flow: a freshly added account is the one the user is
// working in.
func (m *Manager) Add(label, serverURL string) (Account, error) {
	if label == "" {
		return Account{}, fmt.Errorf("session: account label is required")
	}

	now := m.clock.Now().UTC()
	account := Account{
		ID:           AccountID(uuid.NewString()),
		Label:        label,
		ServerURL:    serverURL,
		CreatedAt:    now,
		LastActiveAt: now,
	}

	m.mu.Lock()
	m.accounts[account.ID] = account
	m.active = account.ID
	m.identity.Set(stream.Some(account.ID))
	m.mu.Unlock()

	m.logger.Info("account added", "account", account.ID, "label", label)
	return account, nil
}

// Remove forgets an account. Removing the active account deactivates
// it first, so downstream observers see the identity go absent.
func (m *Manager) Remove(id AccountID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAccount, id)
	}
	delete(m.accounts, id)
	if m.active == id {
		m.active = ""
		m.identity.Set(stream.None[AccountID]())
	}

	m.logger.Info("account removed", "account", id)
	return nil
}

// Switch makes a registered account the active one. Switching to the
// already-active account refreshes its LastActiveAt but publishes no
// identity transition.
func (m *Manager) Switch(id AccountID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAccount, id)
	}
	account.LastActiveAt = m.clock.Now().UTC()
	m.accounts[id] = account
	m.active = id
	m.identity.Set(stream.Some(id))

	m.logger.Info("account switched", "account", id, "label", account.Label)
	return nil
}

// Deactivate clears the active account without forgetting it.
// Idempotent.
func (m *Manager) Deactivate() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == "" {
		return
	}
	previous := m.active
	m.active = ""
	m.identity.Set(stream.None[AccountID]())

	m.logger.Info("account deactivated", "account", previous)
}

// Active returns the active account, if any.
func (m *Manager) Active() (Account, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == "" {
		return Account{}, false
	}
	return m.accounts[m.active], true
}

// Get returns a registered account by ID.
func (m *Manager) Get(id AccountID) (Account, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[id]
	return account, ok
}

// List returns all registered accounts, oldest first, label as the
// tiebreaker.
func (m *Manager) List() []Account {
	m.mu.Lock()
	defer m.mu.Unlock()

	accounts := make([]Account, 0, len(m.accounts))
	for _, account := range m.accounts {
		accounts = append(accounts, account)
	}
	sort.Slice(accounts, func(i, j int) bool {
		if !accounts[i].CreatedAt.Equal(accounts[j].CreatedAt) {
			return accounts[i].CreatedAt.Before(accounts[j].CreatedAt)
		}
		return accounts[i].Label < accounts[j].Label
	})
	return accounts
}

// Count returns the number of registered accounts.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.accounts)
}
