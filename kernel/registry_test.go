package kernel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeComponent struct {
	name        string
	initErr     error
	shutdownErr error
	initCalls   int
	shutCalls   int
	lastPaths   []string
	fileErr     error
	persisted   map[string]any
	persistErr  error
}

func (c *fakeComponent) Name() string { return c.name }
func (c *fakeComponent) Init(ctx context.Context) error {
	c.initCalls++
	return c.initErr
}
func (c *fakeComponent) Shutdown(ctx context.Context) error {
	c.shutCalls++
	return c.shutdownErr
}
func (c *fakeComponent) OnFileEvent(ctx context.Context, paths []string) error {
	c.lastPaths = paths
	return c.fileErr
}
func (c *fakeComponent) Persist(ctx context.Context) (map[string]any, error) {
	return c.persisted, c.persistErr
}

func TestRegisterAndGetRoundTrips(t *testing.T) {
	r := NewRegistry()
	c := &fakeComponent{name: "cortex"}
	r.Register(c)

	got, ok := r.Get("cortex")
	assert.True(t, ok)
	assert.Same(t, c, got)
}

func TestRegisterTwiceReplacesAndKeepsSingleOrderEntry(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeComponent{name: "sniffer"})
	r.Register(&fakeComponent{name: "sniffer"})
	assert.Equal(t, []string{"sniffer"}, r.Names())
}

func TestAllPreservesRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeComponent{name: "cortex"})
	r.Register(&fakeComponent{name: "sniffer"})
	r.Register(&fakeComponent{name: "skill.search"})

	all := r.All()
	names := make([]string, len(all))
	for i, c := range all {
		names[i] = c.Name()
	}
	assert.Equal(t, []string{"cortex", "sniffer", "skill.search"}, names)
}

func TestUnregisterRemovesFromAllAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeComponent{name: "cortex"})
	r.Unregister("cortex")

	_, ok := r.Get("cortex")
	assert.False(t, ok)
	assert.Empty(t, r.All())
}

func TestClearRemovesEverything(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeComponent{name: "cortex"})
	r.Register(&fakeComponent{name: "sniffer"})
	r.Clear()
	assert.Empty(t, r.Names())
}

func TestDispatchFileEventOnlyReachesAwareComponents(t *testing.T) {
	r := NewRegistry()
	aware := &fakeComponent{name: "sniffer"}
	plain := &fakeComponent{name: "cortex", fileErr: errors.New("boom")}
	r.Register(aware)
	r.Register(plain)

	errs := r.DispatchFileEvent(context.Background(), []string{"a.go", "b.go"})
	assert.Equal(t, []string{"a.go", "b.go"}, aware.lastPaths)
	assert.Len(t, errs, 1)
}

func TestPersistAllCollectsStateAndErrors(t *testing.T) {
	r := NewRegistry()
	ok := &fakeComponent{name: "cortex", persisted: map[string]any{"indexed": 3}}
	bad := &fakeComponent{name: "sniffer", persistErr: errors.New("disk full")}
	r.Register(ok)
	r.Register(bad)

	state, errs := r.PersistAll(context.Background())
	assert.Equal(t, map[string]any{"indexed": 3}, state["cortex"])
	assert.Len(t, errs, 1)
	assert.NotContains(t, state, "sniffer")
}
