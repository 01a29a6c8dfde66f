// Package redis is a checkpoint.Store backed by Redis, for multi-process
// deployments that need a shared, network-visible checkpoint timeline.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/wendao-project/wendao-kernel/checkpoint"
)

// Store implements checkpoint.Store over a Redis client: each
// checkpoint is a JSON value under its own key, and a per-thread
// sorted set (score = Step) gives ListTimeline ordering for free.
type Store struct {
	client *redis.Client
	prefix string
}

// Options configures a Store.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string // default "wendao:checkpoint:"
}

// New dials a fresh client. Use NewWithClient to reuse one (e.g.
// against a miniredis instance in tests).
func New(opts Options) *Store {
	client := redis.NewClient(&redis.Options{Addr: opts.Addr, Password: opts.Password, DB: opts.DB})
	return NewWithClient(client, opts)
}

// NewWithClient wraps an already-constructed client.
func NewWithClient(client *redis.Client, opts Options) *Store {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "wendao:checkpoint:"
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) checkpointKey(id string) string { return fmt.Sprintf("%scp:%s", s.prefix, id) }
func (s *Store) threadKey(id string) string      { return fmt.Sprintf("%sthread:%s", s.prefix, id) }

func (s *Store) Save(ctx context.Context, cp *checkpoint.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("checkpoint/redis: marshaling checkpoint: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.checkpointKey(cp.CheckpointID), data, 0)
	if cp.ThreadID != "" {
		pipe.ZAdd(ctx, s.threadKey(cp.ThreadID), redis.Z{Score: float64(cp.Step), Member: cp.CheckpointID})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("checkpoint/redis: saving checkpoint: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, checkpointID string) (*checkpoint.Checkpoint, error) {
	data, err := s.client.Get(ctx, s.checkpointKey(checkpointID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, checkpoint.ErrNotFound
		}
		return nil, fmt.Errorf("checkpoint/redis: loading checkpoint: %w", err)
	}
	var cp checkpoint.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("checkpoint/redis: unmarshaling checkpoint: %w", err)
	}
	return &cp, nil
}

func (s *Store) ListTimeline(ctx context.Context, threadID string, limit int) ([]*checkpoint.Checkpoint, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.threadKey(threadID), &redis.ZRangeBy{Min: "-inf", Max: "+inf"}).Result()
	if err != nil {
		return nil, fmt.Errorf("checkpoint/redis: listing thread %s: %w", threadID, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.checkpointKey(id)
	}
	results, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("checkpoint/redis: fetching checkpoints: %w", err)
	}

	var out []*checkpoint.Checkpoint
	for _, r := range results {
		str, ok := r.(string)
		if !ok {
			continue
		}
		var cp checkpoint.Checkpoint
		if err := json.Unmarshal([]byte(str), &cp); err != nil {
			continue
		}
		out = append(out, &cp)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, checkpointID string) error {
	cp, err := s.Load(ctx, checkpointID)
	if err != nil {
		if err == checkpoint.ErrNotFound {
			return nil
		}
		return err
	}
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.checkpointKey(checkpointID))
	if cp.ThreadID != "" {
		pipe.ZRem(ctx, s.threadKey(cp.ThreadID), checkpointID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("checkpoint/redis: deleting checkpoint: %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context, threadID string) error {
	ids, err := s.client.ZRangeByScore(ctx, s.threadKey(threadID), &redis.ZRangeBy{Min: "-inf", Max: "+inf"}).Result()
	if err != nil {
		return fmt.Errorf("checkpoint/redis: listing thread %s for clear: %w", threadID, err)
	}
	if len(ids) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for _, id := range ids {
		pipe.Del(ctx, s.checkpointKey(id))
	}
	pipe.Del(ctx, s.threadKey(threadID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("checkpoint/redis: clearing thread: %w", err)
	}
	return nil
}
