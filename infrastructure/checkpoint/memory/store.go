// Package memory provides an in-memory checkpoint store, useful for tests
// and single-process runs that don't need durability.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/inquestlabs/inquest/orchestrator"
)

// Store is an in-memory implementation of orchestrator.CheckpointStore.
type Store struct {
	mu     sync.RWMutex
	blobs  map[string][]byte
	latest string
}

// NewStore creates an empty in-memory checkpoint store.
func NewStore() *Store {
	return &Store{blobs: make(map[string][]byte)}
}

// Put stores a checkpoint blob under its ref.
func (s *Store) Put(ctx context.Context, ref string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.blobs[ref] = cp
	return nil
}

// Get retrieves a checkpoint blob by ref.
func (s *Store) Get(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", orchestrator.ErrCheckpointNotFound, ref)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

// SetLatest advances the resume head.
func (s *Store) SetLatest(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[ref]; !ok {
		return fmt.Errorf("%w: %s", orchestrator.ErrCheckpointNotFound, ref)
	}
	s.latest = ref
	return nil
}

// Latest returns the resume head.
func (s *Store) Latest(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == "" {
		return "", orchestrator.ErrCheckpointNotFound
	}
	return s.latest, nil
}

// Len returns the number of stored checkpoints.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

var _ orchestrator.CheckpointStore = (*Store)(nil)
