package statscache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/wendao-project/wendao-kernel/linkgraph"
)

func TestMemoryStorePutGet(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()

	stats := linkgraph.GraphStats{TotalNotes: 3, Orphans: 0, LinksInGraph: 5, NodesInGraph: 3}
	assert.NoError(t, store.Put(ctx, "key-a", stats))

	got, err := store.Get(ctx, "key-a")
	assert.NoError(t, err)
	assert.Equal(t, stats, got.Stats)
	assert.Equal(t, SchemaVersion, got.Schema)
}

func TestMemoryStoreMiss(t *testing.T) {
	store := NewMemoryStore(0)
	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryStoreExpiresByTTL(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	ctx := context.Background()
	assert.NoError(t, store.Put(ctx, "k", linkgraph.GraphStats{TotalNotes: 1}))

	prevNow := nowFunc
	defer func() { nowFunc = prevNow }()
	nowFunc = func() time.Time { return time.Now().Add(time.Hour) }

	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryStoreStaleSchemaIsMiss(t *testing.T) {
	store := NewMemoryStore(0)
	store.entries["k"] = Entry{Schema: "omni.link_graph.stats.cache.v0", SourceKey: "k"}

	_, err := store.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryStoreInvalidate(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()
	assert.NoError(t, store.Put(ctx, "k", linkgraph.GraphStats{TotalNotes: 1}))
	assert.NoError(t, store.Invalidate(ctx, "k"))

	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}
