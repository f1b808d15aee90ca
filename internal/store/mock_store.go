// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory APIKeyStore for testing.
type MockStore struct {
	mu   sync.RWMutex
	keys map[string]*APIKey
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{keys: make(map[string]*APIKey)}
}

// CreateAPIKey stores a copy of key.
func (m *MockStore) CreateAPIKey(_ context.Context, key *APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if key.ID == "" {
		key.ID = uuid.New().String()
	}
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}
	if _, exists := m.keys[key.ID]; exists {
		return ErrDuplicateKey
	}
	k := *key
	m.keys[key.ID] = &k
	return nil
}

// GetAPIKey returns a copy of the stored key.
func (m *MockStore) GetAPIKey(_ context.Context, id string) (*APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	k, ok := m.keys[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *k
	return &out, nil
}

// ListAPIKeys returns copies of every key, oldest first.
func (m *MockStore) ListAPIKeys(context.Context) ([]*APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*APIKey, 0, len(m.keys))
	for _, k := range m.keys {
		c := *k
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// RevokeAPIKey marks the key revoked.
func (m *MockStore) RevokeAPIKey(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k, ok := m.keys[id]
	if !ok {
		return ErrNotFound
	}
	if k.RevokedAt == nil {
		now := time.Now().UTC()
		k.RevokedAt = &now
	}
	return nil
}

// TouchAPIKey records the last use time.
func (m *MockStore) TouchAPIKey(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if k, ok := m.keys[id]; ok {
		t := at
		k.LastUsedAt = &t
	}
	return nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}
