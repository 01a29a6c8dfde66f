package statscache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wendao-project/wendao-kernel/linkgraph"
)

// RedisStore is a statscache.Store backed by Redis, suitable for
// sharing one cache across multiple backend processes.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // key prefix, default "wendao:statscache:"
	TTL      time.Duration // 0 means no expiration
}

// NewRedisStore builds a RedisStore. Pass an existing *redis.Client via
// NewRedisStoreWithClient (e.g. one built against a miniredis instance
// in tests) when you don't want NewRedisStore dialing a fresh one.
func NewRedisStore(opts RedisOptions) *RedisStore {
	client := redis.NewClient(&redis.Options{Addr: opts.Addr, Password: opts.Password, DB: opts.DB})
	return NewRedisStoreWithClient(client, opts)
}

// NewRedisStoreWithClient wraps an already-constructed client.
func NewRedisStoreWithClient(client *redis.Client, opts RedisOptions) *RedisStore {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "wendao:statscache:"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: opts.TTL}
}

func (s *RedisStore) key(sourceKey string) string {
	return fmt.Sprintf("%s%s", s.prefix, sourceKey)
}

func (s *RedisStore) Get(ctx context.Context, sourceKey string) (Entry, error) {
	raw, err := s.client.Get(ctx, s.key(sourceKey)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return Entry{}, ErrMiss
		}
		return Entry{}, fmt.Errorf("statscache: redis get failed: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, fmt.Errorf("statscache: decoding cached entry: %w", err)
	}
	if isStaleSchema(entry) || isExpired(entry, s.ttl, nowFunc()) {
		_ = s.client.Del(ctx, s.key(sourceKey)).Err()
		return Entry{}, ErrMiss
	}
	return entry, nil
}

func (s *RedisStore) Put(ctx context.Context, sourceKey string, stats linkgraph.GraphStats) error {
	entry := Entry{Schema: SchemaVersion, SourceKey: sourceKey, UpdatedAtUnix: nowFunc().Unix(), Stats: stats}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("statscache: encoding entry: %w", err)
	}
	if err := s.client.Set(ctx, s.key(sourceKey), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("statscache: redis set failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Invalidate(ctx context.Context, sourceKey string) error {
	if err := s.client.Del(ctx, s.key(sourceKey)).Err(); err != nil {
		return fmt.Errorf("statscache: redis del failed: %w", err)
	}
	return nil
}
