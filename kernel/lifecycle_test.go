package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLifecycleStartsUninitialized(t *testing.T) {
	l := NewLifecycle()
	assert.Equal(t, StateUninitialized, l.Current())
}

func TestTransitionFollowsFullValidChain(t *testing.T) {
	l := NewLifecycle()
	chain := []State{StateInitializing, StateReady, StateRunning, StateShuttingDown, StateStopped}
	for _, to := range chain {
		assert.NoError(t, l.Transition(to))
		assert.Equal(t, to, l.Current())
	}
}

func TestInitializingToInitializingIsIdempotent(t *testing.T) {
	l := NewLifecycle()
	assert.NoError(t, l.Transition(StateInitializing))
	assert.NoError(t, l.Transition(StateInitializing))
	assert.Equal(t, StateInitializing, l.Current())
}

func TestInvalidTransitionsAreRejected(t *testing.T) {
	cases := []struct {
		name string
		from State
		to   State
	}{
		{"uninitialized to running", StateUninitialized, StateRunning},
		{"uninitialized to ready", StateUninitialized, StateReady},
		{"ready to shutting down", StateReady, StateShuttingDown},
		{"stopped to initializing", StateStopped, StateInitializing},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := NewLifecycle()
			l.state = tc.from // test seam: force a starting state directly

			err := l.Transition(tc.to)
			assert.Error(t, err)

			var invalid *ErrInvalidTransition
			assert.ErrorAs(t, err, &invalid)
			assert.Equal(t, tc.from, invalid.From)
			assert.Equal(t, tc.to, invalid.To)
			assert.Equal(t, tc.from, l.Current())
		})
	}
}

func TestStoppedHasNoOutgoingTransitions(t *testing.T) {
	l := NewLifecycle()
	l.state = StateStopped

	for _, to := range []State{StateUninitialized, StateInitializing, StateReady, StateRunning, StateShuttingDown, StateStopped} {
		err := l.Transition(to)
		if to == StateStopped {
			// Stopped -> Stopped isn't in validTransitions and isn't the
			// special-cased Initializing self-loop, so it must fail too.
			assert.Error(t, err)
			continue
		}
		assert.Error(t, err)
	}
}

func TestErrInvalidTransitionMessageNamesBothStates(t *testing.T) {
	err := &ErrInvalidTransition{From: StateUninitialized, To: StateRunning}
	assert.Contains(t, err.Error(), "uninitialized")
	assert.Contains(t, err.Error(), "running")
}
