package statscache

import (
	"context"
	"sync"
	"time"

	"github.com/wendao-project/wendao-kernel/linkgraph"
)

// MemoryStore is an in-process statscache.Store guarded by a mutex,
// useful for single-process deployments and tests.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration // <=0 means no expiry
	entries map[string]Entry
}

// NewMemoryStore builds a MemoryStore with the given TTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, entries: make(map[string]Entry)}
}

func (m *MemoryStore) Get(_ context.Context, sourceKey string) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[sourceKey]
	if !ok {
		return Entry{}, ErrMiss
	}
	if isStaleSchema(entry) || isExpired(entry, m.ttl, nowFunc()) {
		delete(m.entries, sourceKey)
		return Entry{}, ErrMiss
	}
	return entry, nil
}

func (m *MemoryStore) Put(_ context.Context, sourceKey string, stats linkgraph.GraphStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[sourceKey] = Entry{
		Schema: SchemaVersion, SourceKey: sourceKey,
		UpdatedAtUnix: nowFunc().Unix(), Stats: stats,
	}
	return nil
}

func (m *MemoryStore) Invalidate(_ context.Context, sourceKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, sourceKey)
	return nil
}
