package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wendao-project/wendao-kernel/linkgraph"
	"github.com/wendao-project/wendao-kernel/log"
	"github.com/wendao-project/wendao-kernel/statscache"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg, err := Resolve(t.TempDir(), "")
	require.NoError(t, err)
	return cfg
}

func TestStatsCacheHitSkipsEngine(t *testing.T) {
	cfg := testConfig(t)
	store := statscache.NewMemoryStore(0)
	// unready engine: a cache miss here would surface ErrEngineUnavailable.
	b := New(cfg, &log.NoOpLogger{}, WithStatsCache(store))

	seeded := linkgraph.GraphStats{TotalNotes: 7, Orphans: 1, LinksInGraph: 9, NodesInGraph: 6}
	require.NoError(t, store.Put(context.Background(), cfg.SourceKey, seeded))

	got, err := b.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, seeded, got)
	assert.False(t, b.Engine.IsReady())
}

func TestStatsCacheMissFallsBackToEngineAndWritesBack(t *testing.T) {
	cfg := testConfig(t)
	store := statscache.NewMemoryStore(0)
	engine := linkgraph.NewEngine()
	engine.LoadNotes([]*linkgraph.Note{{Stem: "a", Title: "A", Path: "a.md"}})

	b := New(cfg, &log.NoOpLogger{}, WithStatsCache(store), WithInjectedEngine(engine))

	got, err := b.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, got.TotalNotes)

	cached, err := store.Get(context.Background(), cfg.SourceKey)
	require.NoError(t, err)
	assert.Equal(t, got, cached.Stats)
}

func TestStatsWithInjectedEngineSkipsCacheRead(t *testing.T) {
	cfg := testConfig(t)
	store := statscache.NewMemoryStore(0)
	stale := linkgraph.GraphStats{TotalNotes: 999}
	require.NoError(t, store.Put(context.Background(), cfg.SourceKey, stale))

	engine := linkgraph.NewEngine()
	engine.LoadNotes([]*linkgraph.Note{{Stem: "a", Title: "A", Path: "a.md"}})
	b := New(cfg, &log.NoOpLogger{}, WithStatsCache(store), WithInjectedEngine(engine))

	got, err := b.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, got.TotalNotes)
	assert.NotEqual(t, stale, got)
}

func TestStatsWithoutCacheOrReadyEngineFails(t *testing.T) {
	cfg := testConfig(t)
	b := New(cfg, &log.NoOpLogger{})
	_, err := b.Stats(context.Background())
	assert.ErrorIs(t, err, linkgraph.ErrEngineUnavailable)
}

func TestBootstrapInvalidatesStatsCache(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Resolve(dir, "")
	require.NoError(t, err)
	store := statscache.NewMemoryStore(0)
	require.NoError(t, store.Put(context.Background(), cfg.SourceKey, linkgraph.GraphStats{TotalNotes: 42}))

	b := New(cfg, &log.NoOpLogger{}, WithStatsCache(store))
	_, err = b.Bootstrap()
	require.NoError(t, err)

	_, err = store.Get(context.Background(), cfg.SourceKey)
	assert.ErrorIs(t, err, statscache.ErrMiss)
}

func TestNeighborsAndRelatedDelegateToEngine(t *testing.T) {
	cfg := testConfig(t)
	engine := linkgraph.NewEngine()
	engine.LoadNotes([]*linkgraph.Note{
		{Stem: "a", Title: "A", Path: "a.md", LinksOut: []string{"b"}},
		{Stem: "b", Title: "B", Path: "b.md"},
	})
	b := New(cfg, &log.NoOpLogger{}, WithInjectedEngine(engine))

	hits, err := b.Neighbors("a", linkgraph.Outgoing, 1, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	related, err := b.Related("a", 1, 10)
	require.NoError(t, err)
	assert.Len(t, related, 1)

	meta, ok := b.Metadata("a")
	require.True(t, ok)
	assert.Equal(t, "A", meta.Title)

	toc := b.TOC(10)
	assert.Len(t, toc, 2)
}
