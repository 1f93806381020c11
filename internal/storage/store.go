package storage

import (
	"context"

	"github.com/chatsphere/internal/model"
)

// SnapshotStore persists the session snapshot between page loads.
// Implementations: file.Store (default), redis.Store (shared cache),
// memory.Store (tests and -dev without a disk path).
//
// Load treats absent or corrupt state as empty collections and never fails
// the caller over it; the snapshot is local truth only and the rejoin
// handshake reconciles it against the server.
type SnapshotStore interface {
	Load(ctx context.Context) (model.Snapshot, error)
	Save(ctx context.Context, snap model.Snapshot) error
	Close() error
}
