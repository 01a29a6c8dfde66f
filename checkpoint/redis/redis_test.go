package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"

	"github.com/wendao-project/wendao-kernel/checkpoint"
)

func TestStoreSaveAndLoad(t *testing.T) {
	mr, err := miniredis.Run()
	assert.NoError(t, err)
	defer mr.Close()

	store := New(Options{Addr: mr.Addr()})
	ctx := context.Background()

	cp := &checkpoint.Checkpoint{
		CheckpointID: "cp-1", ThreadID: "thread-a", Step: 0,
		TimestampUnixMs: 1000, Payload: map[string]any{"foo": "bar"},
	}
	assert.NoError(t, store.Save(ctx, cp))

	loaded, err := store.Load(ctx, "cp-1")
	assert.NoError(t, err)
	assert.Equal(t, cp.ThreadID, loaded.ThreadID)
	assert.Equal(t, "bar", loaded.Payload["foo"])
}

func TestStoreLoadMissing(t *testing.T) {
	mr, err := miniredis.Run()
	assert.NoError(t, err)
	defer mr.Close()

	store := New(Options{Addr: mr.Addr()})
	_, err = store.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)
}

func TestStoreListTimeline(t *testing.T) {
	mr, err := miniredis.Run()
	assert.NoError(t, err)
	defer mr.Close()

	store := New(Options{Addr: mr.Addr()})
	ctx := context.Background()
	assert.NoError(t, store.Save(ctx, &checkpoint.Checkpoint{CheckpointID: "a", ThreadID: "t1", Step: 0}))
	assert.NoError(t, store.Save(ctx, &checkpoint.Checkpoint{CheckpointID: "b", ThreadID: "t1", Step: 1}))
	assert.NoError(t, store.Save(ctx, &checkpoint.Checkpoint{CheckpointID: "c", ThreadID: "t2", Step: 0}))

	timeline, err := store.ListTimeline(ctx, "t1", 0)
	assert.NoError(t, err)
	assert.Len(t, timeline, 2)
	assert.Equal(t, "a", timeline[0].CheckpointID)
	assert.Equal(t, "b", timeline[1].CheckpointID)
}

func TestStoreDeleteAndClear(t *testing.T) {
	mr, err := miniredis.Run()
	assert.NoError(t, err)
	defer mr.Close()

	store := New(Options{Addr: mr.Addr()})
	ctx := context.Background()
	assert.NoError(t, store.Save(ctx, &checkpoint.Checkpoint{CheckpointID: "a", ThreadID: "t1", Step: 0}))
	assert.NoError(t, store.Save(ctx, &checkpoint.Checkpoint{CheckpointID: "b", ThreadID: "t1", Step: 1}))

	assert.NoError(t, store.Delete(ctx, "a"))
	_, err = store.Load(ctx, "a")
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)

	assert.NoError(t, store.Clear(ctx, "t1"))
	timeline, err := store.ListTimeline(ctx, "t1", 0)
	assert.NoError(t, err)
	assert.Empty(t, timeline)
}
