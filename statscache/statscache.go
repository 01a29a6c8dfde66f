// Package statscache persists linkgraph.GraphStats under a
// schema-versioned, TTL'd envelope keyed by the backend's cache source
// key, so a cold boot can skip a full rebuild when the notebook
// hasn't moved on and the schema hasn't changed underneath it.
package statscache

import (
	"context"
	"errors"
	"time"

	"github.com/wendao-project/wendao-kernel/linkgraph"
)

// SchemaVersion is the envelope's schema tag. Bumping it invalidates
// every previously cached entry, independent of TTL.
const SchemaVersion = "omni.link_graph.stats.cache.v1"

// ErrMiss is returned by Get when no live entry exists for the key.
var ErrMiss = errors.New("statscache: miss")

// Entry is the persisted envelope.
type Entry struct {
	Schema        string              `json:"schema"`
	SourceKey     string              `json:"source_key"`
	UpdatedAtUnix int64               `json:"updated_at_unix"`
	Stats         linkgraph.GraphStats `json:"stats"`
}

// Store is the backend-agnostic cache contract. Implementations enforce
// TTL at read time: an expired entry behaves as a miss, not an error.
type Store interface {
	Get(ctx context.Context, sourceKey string) (Entry, error)
	Put(ctx context.Context, sourceKey string, stats linkgraph.GraphStats) error
	Invalidate(ctx context.Context, sourceKey string) error
}

// nowFunc is overridable by tests.
var nowFunc = func() time.Time { return time.Now() }

func isExpired(entry Entry, ttl time.Duration, now time.Time) bool {
	if ttl <= 0 {
		return false
	}
	age := now.Sub(time.Unix(entry.UpdatedAtUnix, 0))
	return age > ttl
}

func isStaleSchema(entry Entry) bool {
	return entry.Schema != SchemaVersion
}
