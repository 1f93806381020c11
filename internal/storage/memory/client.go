package memory

import (
	"context"
	"sync"

	"github.com/chatsphere/internal/model"
)

// Store keeps the snapshot in process memory. Used by tests and -dev runs;
// state does not survive a restart, which matches a fresh browser session.
type Store struct {
	mu   sync.RWMutex
	snap model.Snapshot
}

func New() *Store {
	return &Store{}
}

func (s *Store) Close() error { return nil }

func (s *Store) Load(ctx context.Context) (model.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap, nil
}

func (s *Store) Save(ctx context.Context, snap model.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
	return nil
}
