// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/keyfold/keyfold/lib/codec"
	"github.com/keyfold/keyfold/lib/protocol"
	"github.com/keyfold/keyfold/session"
	"github.com/keyfold/keyfold/vault"
)

// errNoActiveAccount is returned by actions that operate on the
// active account's vault when no account is active. The message
// travels to clients verbatim.
var errNoActiveAccount = errors.New("no active account")

func decodeRequest(raw []byte, v any) error {
	if err := codec.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decoding request: %w", err)
	}
	return nil
}

// activeAccount resolves the account that item and export actions
// operate on.
func (d *Daemon) activeAccount() (session.Account, error) {
	account, ok := d.sessions.Active()
	if !ok {
		return session.Account{}, errNoActiveAccount
	}
	return account, nil
}

type accountAddRequest struct {
	Label     string `cbor:"label"`
	ServerURL string `cbor:"server_url,omitempty"`
}

func (d *Daemon) handleAccountAdd(_ context.Context, raw []byte) (any, error) {
	var request accountAddRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	return d.sessions.Add(request.Label, request.ServerURL)
}

func (d *Daemon) handleAccountList(_ context.Context, _ []byte) (any, error) {
	response := protocol.AccountList{Accounts: d.sessions.List()}
	if account, ok := d.sessions.Active(); ok {
		response.Active = string(account.ID)
	}
	return response, nil
}

type accountIDRequest struct {
	ID string `cbor:"id"`
}

func (d *Daemon) handleAccountSwitch(_ context.Context, raw []byte) (any, error) {
	var request accountIDRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	id, err := session.ParseAccountID(request.ID)
	if err != nil {
		return nil, err
	}
	if err := d.sessions.Switch(id); err != nil {
		return nil, err
	}
	account, _ := d.sessions.Get(id)
	return account, nil
}

func (d *Daemon) handleAccountDeactivate(_ context.Context, _ []byte) (any, error) {
	d.sessions.Deactivate()
	return nil, nil
}

// handleAccountRemove forgets an account and purges its vault rows.
// Removal runs before the purge so the identity transition tears the
// observation down first; watchers see the account go absent, never a
// half-emptied vault.
func (d *Daemon) handleAccountRemove(ctx context.Context, raw []byte) (any, error) {
	var request accountIDRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	id, err := session.ParseAccountID(request.ID)
	if err != nil {
		return nil, err
	}
	if err := d.sessions.Remove(id); err != nil {
		return nil, err
	}
	purged, err := d.store.PurgeAccount(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("account removed but purge failed: %w", err)
	}
	return protocol.AccountRemoved{ID: string(id), Purged: purged}, nil
}

type itemPutRequest struct {
	// ID is set to update an existing item in place; empty inserts.
	ID      string `cbor:"id,omitempty"`
	Kind    string `cbor:"kind"`
	Name    string `cbor:"name"`
	Payload []byte `cbor:"payload"`
}

func (d *Daemon) handleItemPut(ctx context.Context, raw []byte) (any, error) {
	var request itemPutRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	account, err := d.activeAccount()
	if err != nil {
		return nil, err
	}
	kind, err := vault.ParseKind(request.Kind)
	if err != nil {
		return nil, err
	}
	return d.store.Put(ctx, vault.Item{
		ID:        request.ID,
		AccountID: account.ID,
		Kind:      kind,
		Name:      request.Name,
		Payload:   request.Payload,
	})
}

type itemNameRequest struct {
	Name string `cbor:"name"`
}

func (d *Daemon) handleItemGet(ctx context.Context, raw []byte) (any, error) {
	var request itemNameRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	if request.Name == "" {
		return nil, fmt.Errorf("item name is required")
	}
	account, err := d.activeAccount()
	if err != nil {
		return nil, err
	}
	return d.store.GetByName(ctx, account.ID, request.Name)
}

func (d *Daemon) handleItemList(ctx context.Context, _ []byte) (any, error) {
	account, err := d.activeAccount()
	if err != nil {
		return nil, err
	}
	items, err := d.store.List(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	return protocol.ItemList{
		Revision: d.store.Revision(account.ID),
		Items:    items,
	}, nil
}

func (d *Daemon) handleItemDelete(ctx context.Context, raw []byte) (any, error) {
	var request itemNameRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	if request.Name == "" {
		return nil, fmt.Errorf("item name is required")
	}
	account, err := d.activeAccount()
	if err != nil {
		return nil, err
	}
	item, err := d.store.GetByName(ctx, account.ID, request.Name)
	if err != nil {
		return nil, err
	}
	if err := d.store.Delete(ctx, account.ID, item.ID); err != nil {
		return nil, err
	}
	return protocol.ItemDeleted{ID: item.ID, Name: item.Name}, nil
}
