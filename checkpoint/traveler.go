package checkpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrHistoryTooShort is returned by ForkAndCorrect when stepsBack
// reaches past the start of the thread's recorded timeline.
var ErrHistoryTooShort = errors.New("checkpoint: history too short for requested steps back")

// TimelineEvent is the traveler's newest-first view of a stored
// Checkpoint: StepsBack is computed at query time (0 = latest), not
// stored, since the store itself only needs to remember each
// checkpoint's forward-increasing Step to stay a simple append-only
// log.
type TimelineEvent struct {
	CheckpointID       string
	ParentCheckpointID string
	StepsBack          int
	TimestampUnixMs    int64
	Preview            string
	Reason             string
}

// EventSink receives traveler/autofix observability events; nil is a
// valid no-op sink.
type EventSink func(topic string, payload map[string]any)

func emit(sink EventSink, topic string, payload map[string]any) {
	if sink != nil {
		sink(topic, payload)
	}
}

// Traveler wraps a Store with the timeline, fork, and diff operations.
type Traveler struct {
	Store Store
}

// NewTraveler builds a Traveler over store.
func NewTraveler(store Store) *Traveler {
	return &Traveler{Store: store}
}

// GetTimeline returns up to limit TimelineEvents for threadID, newest
// first. limit <= 0 means unbounded.
func (t *Traveler) GetTimeline(ctx context.Context, threadID string, limit int) ([]TimelineEvent, error) {
	chrono, err := t.Store.ListTimeline(ctx, threadID, 0) // raw, oldest-first
	if err != nil {
		return nil, err
	}

	events := make([]TimelineEvent, 0, len(chrono))
	for i := len(chrono) - 1; i >= 0; i-- {
		cp := chrono[i]
		events = append(events, TimelineEvent{
			CheckpointID:       cp.CheckpointID,
			ParentCheckpointID: cp.ParentCheckpointID,
			StepsBack:          len(chrono) - 1 - i,
			TimestampUnixMs:    cp.TimestampUnixMs,
			Preview:            cp.Preview,
			Reason:             cp.Reason,
		})
	}
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

// GetCheckpointContent returns the decoded payload for checkpointID,
// or (nil, nil) if it does not exist.
func (t *Traveler) GetCheckpointContent(ctx context.Context, checkpointID string) (map[string]any, error) {
	cp, err := t.Store.Load(ctx, checkpointID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return cp.Payload, nil
}

// PatchFunc mutates a copy of the checkpoint payload located at the
// fork point and returns the corrected payload.
type PatchFunc func(payload map[string]any) map[string]any

// ForkAndCorrect locates the checkpoint stepsBack offsets behind the
// head of threadID's timeline (0 = the latest checkpoint), applies
// patch to its payload, and appends the result as a new checkpoint
// whose parent is the located one. It returns the new checkpoint.
func (t *Traveler) ForkAndCorrect(ctx context.Context, threadID string, stepsBack int, patch PatchFunc, reason string, sink EventSink) (*Checkpoint, error) {
	chrono, err := t.Store.ListTimeline(ctx, threadID, 0)
	if err != nil {
		return nil, err
	}
	if len(chrono) <= stepsBack {
		return nil, ErrHistoryTooShort
	}

	target := chrono[len(chrono)-1-stepsBack]
	emit(sink, "time_travel/initiating", map[string]any{
		"thread_id": threadID, "steps_back": stepsBack, "parent_checkpoint_id": target.CheckpointID,
	})

	newPayload := patch(clonePayload(target.Payload))
	latestStep := chrono[len(chrono)-1].Step

	forked := &Checkpoint{
		CheckpointID:       uuid.NewString(),
		ThreadID:           threadID,
		ParentCheckpointID: target.CheckpointID,
		Step:               latestStep + 1,
		TimestampUnixMs:    target.TimestampUnixMs,
		Preview:            previewOf(newPayload),
		Reason:             reason,
		Payload:            newPayload,
	}
	if err := t.Store.Save(ctx, forked); err != nil {
		return nil, fmt.Errorf("checkpoint: saving forked checkpoint: %w", err)
	}

	emit(sink, "time_travel/complete", map[string]any{
		"thread_id": threadID, "checkpoint_id": forked.CheckpointID, "parent_checkpoint_id": target.CheckpointID,
	})
	return forked, nil
}

// CompareCheckpoints diffs the decoded payloads of a and b by key:
// added keys exist only in b, removed keys exist only in a, changed
// keys exist in both with unequal values.
func (t *Traveler) CompareCheckpoints(ctx context.Context, a, b string) (added, removed, changed []string, err error) {
	pa, err := t.GetCheckpointContent(ctx, a)
	if err != nil {
		return nil, nil, nil, err
	}
	pb, err := t.GetCheckpointContent(ctx, b)
	if err != nil {
		return nil, nil, nil, err
	}

	for k, vb := range pb {
		va, ok := pa[k]
		if !ok {
			added = append(added, k)
		} else if !deepEqual(va, vb) {
			changed = append(changed, k)
		}
	}
	for k := range pa {
		if _, ok := pb[k]; !ok {
			removed = append(removed, k)
		}
	}
	return added, removed, changed, nil
}

func clonePayload(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func previewOf(payload map[string]any) string {
	if msgs, ok := payload["messages"].([]any); ok && len(msgs) > 0 {
		if last, ok := msgs[len(msgs)-1].(map[string]any); ok {
			if content, ok := last["content"].(string); ok {
				if len(content) > 120 {
					return content[:120]
				}
				return content
			}
		}
	}
	return ""
}

func deepEqual(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}
