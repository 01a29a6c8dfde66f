// Package autofix is the bounded anti-fragile wrapper around graph
// execution: it retries a failed invocation by pruning context, forking
// history at the checkpoint store, and injecting a "lesson learned"
// correction, re-raising the original error once retries are exhausted.
package autofix

import (
	"context"
	"fmt"

	"github.com/wendao-project/wendao-kernel/checkpoint"
	wendaocontext "github.com/wendao-project/wendao-kernel/context"
	"github.com/wendao-project/wendao-kernel/wendaoerr"
)

// Graph is the minimal surface the auto-fix loop needs from a graph
// runtime: invoke it, and read back its current state for a thread.
type Graph interface {
	Invoke(ctx context.Context, input any, cfg Config) (map[string]any, error)
	GetState(ctx context.Context, cfg Config) (map[string]any, error)
}

// Config carries the thread identity the graph and traveler operate on.
// CheckpointID is populated by the loop after a fork, pointing the next
// attempt at the new state.
type Config struct {
	ThreadID     string
	CheckpointID string
}

// Validator inspects a successful invocation's result and reports
// whether it is acceptable. A false return is treated as a Validation
// failure and is recoverable.
type Validator func(result map[string]any) bool

// OnAttempt is notified before each attempt after the first, with the
// zero-based attempt index and the error that triggered the retry.
type OnAttempt func(attempt int, err error)

// EventSink receives the five autofix/* event topics. May be nil.
type EventSink func(topic string, payload map[string]any)

func emit(sink EventSink, topic string, payload map[string]any) {
	if sink == nil {
		return
	}
	sink(topic, payload)
}

// CorrectionStrategy builds the patch applied to the forked checkpoint.
// prunedMessages is nil when pruning itself failed or the state carried
// no messages.
type CorrectionStrategy func(err error, currentState map[string]any, prunedMessages []wendaocontext.Message) map[string]any

// Traveler is the subset of *checkpoint.Traveler the loop needs: fork one
// step back and apply a correction.
type Traveler interface {
	ForkAndCorrect(ctx context.Context, threadID string, stepsBack int, patch checkpoint.PatchFunc, reason string, sink checkpoint.EventSink) (*checkpoint.Checkpoint, error)
}

// Loop executes a Graph with automatic time-travel recovery.
type Loop struct {
	Traveler   Traveler
	Pruner     *wendaocontext.Pruner
	MaxRetries int
	Strategy   CorrectionStrategy
	Events     EventSink
}

// NewLoop builds a Loop, defaulting MaxRetries to 2 and Strategy to
// DefaultCorrectionStrategy when unset.
func NewLoop(traveler Traveler, pruner *wendaocontext.Pruner, maxRetries int) *Loop {
	if pruner == nil {
		pruner = wendaocontext.NewPruner(wendaocontext.PruningConfig{})
	}
	if maxRetries == 0 {
		maxRetries = 2
	}
	return &Loop{Traveler: traveler, Pruner: pruner, MaxRetries: maxRetries, Strategy: DefaultCorrectionStrategy}
}

// DefaultCorrectionStrategy appends a "lesson learned" user message to
// the (possibly pruned) message history.
func DefaultCorrectionStrategy(err error, currentState map[string]any, prunedMessages []wendaocontext.Message) map[string]any {
	messages := prunedMessages
	if messages == nil {
		if raw, ok := currentState["messages"].([]wendaocontext.Message); ok {
			messages = raw
		}
	}

	lesson := wendaocontext.Message{
		Role: "user",
		Content: fmt.Sprintf(
			"[AUTO-FIX RECOVERY - Attempt Failed]\nError: %v\n\nThe previous attempt failed. We have rolled back to a previous checkpoint "+
				"and compressed the conversation history to save tokens.\n\nPlease analyze the error and try a different approach. "+
				"Consider what went wrong and how to avoid the same mistake.",
			err,
		),
	}

	return map[string]any{"messages": append(append([]wendaocontext.Message(nil), messages...), lesson)}
}

// validationFailure marks a validator rejection so Run can classify it
// through wendaoerr the same way it classifies a raised error.
type validationFailure struct {
	result map[string]any
}

func (v *validationFailure) Error() string {
	return fmt.Sprintf("output validation failed: %v", v.result)
}

// Run invokes graph with input/config, retrying up to MaxRetries times
// on Validation/Transient failures by pruning context and forking the
// checkpoint one step back. Re-raises the original error if retries are
// exhausted or if the fork itself fails.
func (l *Loop) Run(ctx context.Context, graph Graph, input any, config Config, validator Validator, onAttempt OnAttempt) (map[string]any, error) {
	currentInput := input
	currentConfig := config

	for attempt := 0; attempt <= l.MaxRetries; attempt++ {
		result, err := graph.Invoke(ctx, currentInput, currentConfig)
		if err == nil && validator != nil && !validator(result) {
			err = wendaoerr.New(wendaoerr.Validation, "autofix.run", &validationFailure{result: result})
		}

		if err == nil {
			if attempt > 0 {
				emit(l.Events, "autofix/recover", map[string]any{
					"attempt":    attempt,
					"thread_id":  config.ThreadID,
					"compressed": true,
				})
			}
			return result, nil
		}

		if attempt >= l.MaxRetries || !wendaoerr.KindOf(err).Recoverable() {
			emit(l.Events, "autofix/fail", map[string]any{
				"attempt":   attempt,
				"thread_id": config.ThreadID,
				"error":     err.Error(),
			})
			return nil, err
		}

		if onAttempt != nil {
			onAttempt(attempt, err)
		}
		emit(l.Events, "autofix/attempt", map[string]any{
			"attempt":   attempt,
			"thread_id": config.ThreadID,
			"error":     err.Error(),
		})

		nextConfig, forkErr := l.recover(ctx, graph, currentConfig, err)
		if forkErr != nil {
			return nil, err
		}
		currentConfig = nextConfig
		currentInput = nil
	}

	return nil, fmt.Errorf("autofix: exhausted retries without a terminal result")
}

func (l *Loop) recover(ctx context.Context, graph Graph, cfg Config, triggerErr error) (Config, error) {
	state, stateErr := graph.GetState(ctx, cfg)
	if stateErr != nil {
		state = map[string]any{}
	}

	var pruned []wendaocontext.Message
	if raw, ok := state["messages"].([]wendaocontext.Message); ok && len(raw) > 0 {
		pruned = l.Pruner.PruneForRetry(raw, triggerErr.Error(), l.Pruner.Config().MaxTokens)
		emit(l.Events, "autofix/prune", map[string]any{
			"thread_id":     cfg.ThreadID,
			"before_count":  len(raw),
			"after_count":   len(pruned),
			"before_tokens": l.Pruner.CountMessages(raw),
			"after_tokens":  l.Pruner.CountMessages(pruned),
		})
	}

	patch := l.strategy()(triggerErr, state, pruned)

	emit(l.Events, "autofix/travel", map[string]any{
		"thread_id": cfg.ThreadID,
	})

	forked, err := l.Traveler.ForkAndCorrect(ctx, cfg.ThreadID, 1, func(p map[string]any) map[string]any {
		for k, v := range patch {
			p[k] = v
		}
		return p
	}, fmt.Sprintf("AutoFix: %s", wendaoerr.KindOf(triggerErr)), checkpoint.EventSink(l.Events))
	if err != nil {
		return Config{}, err
	}

	return Config{ThreadID: cfg.ThreadID, CheckpointID: forked.CheckpointID}, nil
}

func (l *Loop) strategy() CorrectionStrategy {
	if l.Strategy != nil {
		return l.Strategy
	}
	return DefaultCorrectionStrategy
}
