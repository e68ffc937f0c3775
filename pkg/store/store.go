// Copyright 2024-2026 Aiku AI

// Package store persists the small per-account records the bot needs to
// resume after a restart: the sync cursor and the control room mapping.
package store

import (
	"context"
	"fmt"

	"maunium.net/go/mautrix/id"
)

// Record keys. Each account owns exactly one value per key.
const (
	KeyNextBatch   = "next_batch"
	KeyControlRoom = "control_room"
)

// Store is a string key-value store partitioned by account. A missing value
// is reported with ok == false and a nil error.
//
// Implementations must be safe for concurrent use. Different accounts never
// share keys, so no cross-key transactions are needed.
type Store interface {
	Get(ctx context.Context, account id.UserID, key string) (value string, ok bool, err error)
	Put(ctx context.Context, account id.UserID, key, value string) error
	Close() error
}

// PersistenceError is returned when a record could not be read or written.
type PersistenceError struct {
	Account id.UserID
	Key     string
	Op      string
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s %s for %s: %v", e.Op, e.Key, e.Account, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// CursorStore reads and writes the sync resumption token of an account.
type CursorStore struct {
	kv Store
}

func NewCursorStore(kv Store) *CursorStore {
	return &CursorStore{kv: kv}
}

// Load returns the persisted cursor. ok is false on the first run.
func (cs *CursorStore) Load(ctx context.Context, account id.UserID) (cursor string, ok bool, err error) {
	cursor, ok, err = cs.kv.Get(ctx, account, KeyNextBatch)
	if err != nil {
		return "", false, &PersistenceError{Account: account, Key: KeyNextBatch, Op: "load", Err: err}
	}
	return cursor, ok && cursor != "", nil
}

// Save overwrites the persisted cursor.
func (cs *CursorStore) Save(ctx context.Context, account id.UserID, cursor string) error {
	if err := cs.kv.Put(ctx, account, KeyNextBatch, cursor); err != nil {
		return &PersistenceError{Account: account, Key: KeyNextBatch, Op: "save", Err: err}
	}
	return nil
}

// ControlRooms holds the account to control room mapping.
type ControlRooms struct {
	kv Store
}

func NewControlRooms(kv Store) *ControlRooms {
	return &ControlRooms{kv: kv}
}

func (cr *ControlRooms) Get(ctx context.Context, account id.UserID) (id.RoomID, bool, error) {
	val, ok, err := cr.kv.Get(ctx, account, KeyControlRoom)
	if err != nil {
		return "", false, &PersistenceError{Account: account, Key: KeyControlRoom, Op: "load", Err: err}
	}
	if !ok || val == "" {
		return "", false, nil
	}
	return id.RoomID(val), true, nil
}

func (cr *ControlRooms) Set(ctx context.Context, account id.UserID, room id.RoomID) error {
	if err := cr.kv.Put(ctx, account, KeyControlRoom, room.String()); err != nil {
		return &PersistenceError{Account: account, Key: KeyControlRoom, Op: "save", Err: err}
	}
	return nil
}
