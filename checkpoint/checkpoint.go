// Package checkpoint defines the append-only checkpoint model shared
// by every storage backend (memory, file, sqlite, redis, postgres) and
// by the time-travel operations in traveler.go.
package checkpoint

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Load when no checkpoint exists for the
// given ID.
var ErrNotFound = errors.New("checkpoint: not found")

// Checkpoint is one step of a thread's history. CheckpointID is unique
// process-wide; Step is monotonically increasing within a ThreadID and
// is what orders ListTimeline. ParentCheckpointID is empty for a
// thread's first checkpoint; ForkAndCorrect saves a new checkpoint whose
// ParentCheckpointID names the earlier step it branches from.
type Checkpoint struct {
	CheckpointID       string         `json:"checkpoint_id"`
	ThreadID           string         `json:"thread_id"`
	ParentCheckpointID string         `json:"parent_checkpoint_id,omitempty"`
	Step               int            `json:"step"`
	TimestampUnixMs    int64          `json:"timestamp_unix_ms"`
	Preview            string         `json:"preview,omitempty"`
	Reason             string         `json:"reason,omitempty"`
	Payload            map[string]any `json:"payload"`
}

// Store is the append-only persistence contract every backend
// implements. Save must accept repeated CheckpointIDs as an upsert, and
// ListTimeline must return checkpoints ordered by Step ascending.
// ForkAndCorrect never rewrites an existing checkpoint; it saves a new
// one under a fresh ID.
type Store interface {
	Save(ctx context.Context, cp *Checkpoint) error
	Load(ctx context.Context, checkpointID string) (*Checkpoint, error)
	ListTimeline(ctx context.Context, threadID string, limit int) ([]*Checkpoint, error)
	Delete(ctx context.Context, checkpointID string) error
	Clear(ctx context.Context, threadID string) error
}
