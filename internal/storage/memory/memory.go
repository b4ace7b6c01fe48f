// Package memory provides a process-local Storage used in tests and
// single-instance development.
package memory

import (
	"context"
	"sync"

	apperrors "github.com/utafrali/templamart/pkg/errors"
)

// Store keeps slots in a map guarded by a mutex.
type Store struct {
	mu    sync.RWMutex
	slots map[string][]byte
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{slots: make(map[string][]byte)}
}

// Get returns a copy of the stored value.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.slots[key]
	if !ok {
		return nil, apperrors.NotFound("slot", key)
	}
	return append([]byte(nil), v...), nil
}

// Set stores a copy of value.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.slots[key] = append([]byte(nil), value...)
	return nil
}

// Delete removes the key. Deleting an absent key is not an error.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.slots, key)
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }
