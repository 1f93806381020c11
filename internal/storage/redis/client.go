package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chatsphere/internal/logger"
	"github.com/chatsphere/internal/model"
	"github.com/redis/go-redis/v9"
)

// Store keeps the snapshot in Redis under five keys scoped by session id:
// session:{id}:activeChannels and so on, each a JSON array with a session
// TTL. Missing or undecodable keys load as empty collections.
type Store struct {
	cli       *redis.Client
	sessionID string
	ttl       time.Duration
}

func New(ctx context.Context, url, sessionID string, ttl time.Duration) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Store{cli: cli, sessionID: sessionID, ttl: ttl}, nil
}

func (s *Store) Close() error {
	return s.cli.Close()
}

func (s *Store) key(name string) string {
	return "session:" + s.sessionID + ":" + name
}

func (s *Store) Load(ctx context.Context) (model.Snapshot, error) {
	var snap model.Snapshot
	vals, err := s.cli.MGet(ctx,
		s.key(model.KeyActiveChannels),
		s.key(model.KeyPrivateChatRequests),
		s.key(model.KeyViewedRequests),
		s.key(model.KeyPrivateChats),
		s.key(model.KeyViewedChats),
	).Result()
	if err != nil {
		logger.Errorf("snapshot redis: mget: %v (starting empty)", err)
		return snap, nil
	}
	if len(vals) != 5 {
		return snap, nil
	}
	decode(vals[0], model.KeyActiveChannels, &snap.ActiveChannels)
	decode(vals[1], model.KeyPrivateChatRequests, &snap.PrivateChatRequests)
	decode(vals[2], model.KeyViewedRequests, &snap.ViewedRequests)
	decode(vals[3], model.KeyPrivateChats, &snap.PrivateChats)
	decode(vals[4], model.KeyViewedChats, &snap.ViewedChats)
	return snap, nil
}

func decode(val any, key string, dst any) {
	str, ok := val.(string)
	if !ok || str == "" {
		return
	}
	if err := json.Unmarshal([]byte(str), dst); err != nil {
		logger.Errorf("snapshot redis: key %s: %v (treating as empty)", key, err)
	}
}

func (s *Store) Save(ctx context.Context, snap model.Snapshot) error {
	keys := []struct {
		name string
		val  any
	}{
		{model.KeyActiveChannels, orEmpty(snap.ActiveChannels)},
		{model.KeyPrivateChatRequests, orEmpty(snap.PrivateChatRequests)},
		{model.KeyViewedRequests, orEmpty(snap.ViewedRequests)},
		{model.KeyPrivateChats, orEmptyChats(snap.PrivateChats)},
		{model.KeyViewedChats, orEmpty(snap.ViewedChats)},
	}
	pipe := s.cli.Pipeline()
	for _, k := range keys {
		data, err := json.Marshal(k.val)
		if err != nil {
			return fmt.Errorf("snapshot redis: marshal %s: %w", k.name, err)
		}
		pipe.Set(ctx, s.key(k.name), data, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("snapshot redis: save: %w", err)
	}
	return nil
}

func orEmpty(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func orEmptyChats(v []model.PrivateChat) []model.PrivateChat {
	if v == nil {
		return []model.PrivateChat{}
	}
	return v
}
