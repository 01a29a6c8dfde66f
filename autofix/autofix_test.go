package autofix

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wendao-project/wendao-kernel/checkpoint"
	wendaocontext "github.com/wendao-project/wendao-kernel/context"
)

// fakeGraph fails its first N invocations, then succeeds.
type fakeGraph struct {
	failUntil int
	calls     int
	state     map[string]any
}

func (g *fakeGraph) Invoke(_ context.Context, _ any, _ Config) (map[string]any, error) {
	g.calls++
	if g.calls <= g.failUntil {
		return nil, errors.New("boom")
	}
	return map[string]any{"ok": true}, nil
}

func (g *fakeGraph) GetState(_ context.Context, _ Config) (map[string]any, error) {
	return g.state, nil
}

// fakeTraveler records each fork, and fails every fork when fail is set.
type fakeTraveler struct {
	forks int
	fail  bool
}

func (f *fakeTraveler) ForkAndCorrect(_ context.Context, threadID string, stepsBack int, patch checkpoint.PatchFunc, reason string, sink checkpoint.EventSink) (*checkpoint.Checkpoint, error) {
	if f.fail {
		return nil, errors.New("fork failed")
	}
	f.forks++
	payload := patch(map[string]any{})
	if sink != nil {
		sink("time_travel/complete", nil)
	}
	return &checkpoint.Checkpoint{CheckpointID: "forked-1", ThreadID: threadID, Payload: payload}, nil
}

func TestRunSucceedsOnFirstAttempt(t *testing.T) {
	graph := &fakeGraph{failUntil: 0}
	loop := NewLoop(&fakeTraveler{}, nil, 2)

	result, err := loop.Run(context.Background(), graph, "input", Config{ThreadID: "t1"}, nil, nil)
	assert.NoError(t, err)
	assert.Equal(t, true, result["ok"])
	assert.Equal(t, 1, graph.calls)
}

func TestRunRecoversAfterForkAndRetry(t *testing.T) {
	graph := &fakeGraph{failUntil: 1, state: map[string]any{
		"messages": []wendaocontext.Message{{Role: "user", Content: "do the thing"}},
	}}
	traveler := &fakeTraveler{}
	loop := NewLoop(traveler, nil, 2)

	var events []string
	loop.Events = func(topic string, _ map[string]any) { events = append(events, topic) }

	result, err := loop.Run(context.Background(), graph, "input", Config{ThreadID: "t1"}, nil, nil)
	assert.NoError(t, err)
	assert.Equal(t, true, result["ok"])
	assert.Equal(t, 1, traveler.forks)
	assert.Contains(t, events, "autofix/attempt")
	assert.Contains(t, events, "autofix/prune")
	assert.Contains(t, events, "autofix/travel")
	assert.Contains(t, events, "autofix/recover")
}

func TestRunReraisesOriginalErrorOnForkFailure(t *testing.T) {
	graph := &fakeGraph{failUntil: 10}
	traveler := &fakeTraveler{fail: true}
	loop := NewLoop(traveler, nil, 2)

	_, err := loop.Run(context.Background(), graph, "input", Config{ThreadID: "t1"}, nil, nil)
	assert.ErrorContains(t, err, "boom")
	assert.NotContains(t, err.Error(), "fork failed")
}

func TestRunExhaustsRetriesAndReraises(t *testing.T) {
	graph := &fakeGraph{failUntil: 10}
	loop := NewLoop(&fakeTraveler{}, nil, 2)

	_, err := loop.Run(context.Background(), graph, "input", Config{ThreadID: "t1"}, nil, nil)
	assert.ErrorContains(t, err, "boom")
	assert.Equal(t, 3, graph.calls) // attempt 0,1,2
}

func TestRunTreatsValidatorFailureAsRecoverable(t *testing.T) {
	graph := &fakeGraph{failUntil: 0}
	loop := NewLoop(&fakeTraveler{}, nil, 1)

	calls := 0
	validator := func(result map[string]any) bool {
		calls++
		return calls > 1 // fail first call, pass second
	}

	result, err := loop.Run(context.Background(), graph, "input", Config{ThreadID: "t1"}, validator, nil)
	assert.NoError(t, err)
	assert.Equal(t, true, result["ok"])
}

func TestRunCallsOnAttemptWithTriggeringError(t *testing.T) {
	graph := &fakeGraph{failUntil: 1}
	loop := NewLoop(&fakeTraveler{}, nil, 2)

	var seen []error
	_, err := loop.Run(context.Background(), graph, "input", Config{ThreadID: "t1"}, nil, func(attempt int, e error) {
		seen = append(seen, e)
	})
	assert.NoError(t, err)
	assert.Len(t, seen, 1)
	assert.ErrorContains(t, seen[0], "boom")
}
