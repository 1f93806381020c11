package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chatsphere/internal/logger"
	"github.com/chatsphere/internal/model"
)

// Store persists the snapshot as a JSON document on disk, one key per
// collection. A missing file or an undecodable key yields an empty
// collection, never an error: the rejoin handshake corrects any divergence.
type Store struct {
	path string
}

func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Close() error { return nil }

func (s *Store) Load(ctx context.Context) (model.Snapshot, error) {
	var snap model.Snapshot
	data, err := os.ReadFile(s.path)
	if err != nil {
		return snap, nil
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		logger.Errorf("snapshot file: parse %s: %v (starting empty)", s.path, err)
		return snap, nil
	}

	decode(keys, model.KeyActiveChannels, &snap.ActiveChannels)
	decode(keys, model.KeyPrivateChatRequests, &snap.PrivateChatRequests)
	decode(keys, model.KeyViewedRequests, &snap.ViewedRequests)
	decode(keys, model.KeyPrivateChats, &snap.PrivateChats)
	decode(keys, model.KeyViewedChats, &snap.ViewedChats)
	return snap, nil
}

// decode fills dst from one snapshot key; a corrupt key only empties that
// collection.
func decode(keys map[string]json.RawMessage, key string, dst any) {
	raw, ok := keys[key]
	if !ok {
		return
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		logger.Errorf("snapshot file: key %s: %v (treating as empty)", key, err)
	}
}

func (s *Store) Save(ctx context.Context, snap model.Snapshot) error {
	keys := map[string]any{
		model.KeyActiveChannels:      emptySlice(snap.ActiveChannels),
		model.KeyPrivateChatRequests: emptySlice(snap.PrivateChatRequests),
		model.KeyViewedRequests:      emptySlice(snap.ViewedRequests),
		model.KeyPrivateChats:        emptyChats(snap.PrivateChats),
		model.KeyViewedChats:         emptySlice(snap.ViewedChats),
	}
	data, err := json.Marshal(keys)
	if err != nil {
		return fmt.Errorf("snapshot file: marshal: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("snapshot file: mkdir: %w", err)
	}
	// Write-and-rename so a crash mid-write never leaves a corrupt snapshot.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("snapshot file: write: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("snapshot file: rename: %w", err)
	}
	return nil
}

// emptySlice keeps persisted keys as [] instead of null.
func emptySlice(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func emptyChats(v []model.PrivateChat) []model.PrivateChat {
	if v == nil {
		return []model.PrivateChat{}
	}
	return v
}
