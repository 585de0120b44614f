// Package store provides durable snapshot storage for the response
// cache.
//
// DESIGN: The cache persists as one opaque payload per namespace, a
// JSON mapping of cache key to entry. Store implementations only move
// bytes; entry shape and TTL policy belong to the cache.
//
// SQLiteStore is the production implementation. MemoryStore backs
// tests and the persistence-disabled mode.
package store

import (
	"context"
	"sync"
)

// Store moves cache snapshots to and from durable storage.
type Store interface {
	// Load returns the payload for the namespace, or nil when no
	// snapshot exists yet.
	Load(ctx context.Context) ([]byte, error)

	// Save replaces the payload for the namespace.
	Save(ctx context.Context, payload []byte) error

	// Close releases resources.
	Close() error
}

// MemoryStore keeps the snapshot in memory. Useful in tests and as the
// sink when persistence is disabled.
type MemoryStore struct {
	mu      sync.Mutex
	payload []byte
	saves   int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns the last saved payload, nil if none.
func (s *MemoryStore) Load(context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.payload == nil {
		return nil, nil
	}
	out := make([]byte, len(s.payload))
	copy(out, s.payload)
	return out, nil
}

// Save replaces the payload.
func (s *MemoryStore) Save(_ context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payload = make([]byte, len(payload))
	copy(s.payload, payload)
	s.saves++
	return nil
}

// Saves returns how many times Save has been called.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)
