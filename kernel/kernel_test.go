package kernel

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wendao-project/wendao-kernel/checkpoint/memory"
)

var assertErr = errors.New("init failed")

func writeFile(t *testing.T, root, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte("hello"), 0o644))
}

func TestNewRequiresAStore(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestNewBuildsUninitializedKernel(t *testing.T) {
	k, err := New(Options{Store: memory.New()})
	require.NoError(t, err)
	assert.Equal(t, StateUninitialized, k.Lifecycle.Current())
	assert.NotNil(t, k.Reactor)
	assert.NotNil(t, k.Registry)
	assert.NotNil(t, k.AutoFix)
}

func TestBootTransitionsToRunningAndInitializesComponents(t *testing.T) {
	k, err := New(Options{Store: memory.New()})
	require.NoError(t, err)

	c := &fakeComponent{name: "cortex"}
	k.Registry.Register(c)

	require.NoError(t, k.Boot(context.Background()))
	assert.Equal(t, StateRunning, k.Lifecycle.Current())
	assert.Equal(t, 1, c.initCalls)
	assert.True(t, k.Reactor.IsRunning())
}

func TestBootFailsWhenComponentInitErrors(t *testing.T) {
	k, err := New(Options{Store: memory.New()})
	require.NoError(t, err)
	k.Registry.Register(&fakeComponent{name: "broken", initErr: assertErr})

	err = k.Boot(context.Background())
	assert.Error(t, err)
}

func TestShutdownStopsReactorAndClearsRegistry(t *testing.T) {
	k, err := New(Options{Store: memory.New()})
	require.NoError(t, err)
	c := &fakeComponent{name: "cortex"}
	k.Registry.Register(c)

	require.NoError(t, k.Boot(context.Background()))
	require.NoError(t, k.Shutdown(context.Background()))

	assert.Equal(t, StateStopped, k.Lifecycle.Current())
	assert.False(t, k.Reactor.IsRunning())
	assert.Equal(t, 1, c.shutCalls)
	assert.Empty(t, k.Registry.Names())
}

func TestOnFilesChangedDispatchesToAwareComponentsAndNotifies(t *testing.T) {
	k, err := New(Options{Store: memory.New()})
	require.NoError(t, err)

	aware := &fakeComponent{name: "sniffer"}
	k.Registry.Register(aware)

	var notified map[string]any
	k.notify = func(event string, payload map[string]any) { notified = payload }

	require.NoError(t, k.Boot(context.Background()))
	defer k.Shutdown(context.Background())

	k.onFilesChanged(context.Background(), []string{"a.md"})
	assert.Equal(t, []string{"a.md"}, aware.lastPaths)
	require.NotNil(t, notified)
	assert.Equal(t, []string{"a.md"}, notified["paths"])
}

func TestBootIsIdempotentOnInitializingSelfLoop(t *testing.T) {
	k, err := New(Options{Store: memory.New()})
	require.NoError(t, err)

	require.NoError(t, k.Lifecycle.Transition(StateInitializing))
	require.NoError(t, k.Boot(context.Background()))
	assert.Equal(t, StateRunning, k.Lifecycle.Current())
}

func TestWatchedRootDrivesHotReload(t *testing.T) {
	root := t.TempDir()
	k, err := New(Options{Store: memory.New(), WatchRoot: root})
	require.NoError(t, err)

	changed := make(chan []string, 1)
	aware := &fakeComponent{name: "sniffer"}
	k.Registry.Register(aware)
	k.notify = func(event string, payload map[string]any) {
		if paths, ok := payload["paths"].([]string); ok {
			select {
			case changed <- paths:
			default:
			}
		}
	}

	require.NoError(t, k.Boot(context.Background()))
	defer k.Shutdown(context.Background())

	writeFile(t, root, "note.md")

	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatal("hot-reload notification never arrived")
	}
}
