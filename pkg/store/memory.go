// Copyright 2024-2026 Aiku AI

package store

import (
	"context"
	"sync"

	"maunium.net/go/mautrix/id"
)

// MemoryStore keeps records in process memory. Nothing survives a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[id.UserID]map[string]string
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[id.UserID]map[string]string)}
}

func (m *MemoryStore) Get(_ context.Context, account id.UserID, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	val, ok := m.records[account][key]
	return val, ok, nil
}

func (m *MemoryStore) Put(_ context.Context, account id.UserID, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records[account] == nil {
		m.records[account] = make(map[string]string)
	}
	m.records[account][key] = value
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
