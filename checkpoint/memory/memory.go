// Package memory is an in-process checkpoint.Store, the default for
// single-node runs and the backend used by the kernel's tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/wendao-project/wendao-kernel/checkpoint"
)

// Store implements checkpoint.Store over a mutex-guarded map.
type Store struct {
	mu   sync.RWMutex
	byID map[string]*checkpoint.Checkpoint
}

// New returns an empty Store.
func New() *Store {
	return &Store{byID: make(map[string]*checkpoint.Checkpoint)}
}

func (s *Store) Save(_ context.Context, cp *checkpoint.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *cp
	s.byID[cp.CheckpointID] = &clone
	return nil
}

func (s *Store) Load(_ context.Context, checkpointID string) (*checkpoint.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.byID[checkpointID]
	if !ok {
		return nil, checkpoint.ErrNotFound
	}
	clone := *cp
	return &clone, nil
}

func (s *Store) ListTimeline(_ context.Context, threadID string, limit int) ([]*checkpoint.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*checkpoint.Checkpoint
	for _, cp := range s.byID {
		if cp.ThreadID == threadID {
			clone := *cp
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Step < out[j].Step })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *Store) Delete(_ context.Context, checkpointID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, checkpointID)
	return nil
}

func (s *Store) Clear(_ context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cp := range s.byID {
		if cp.ThreadID == threadID {
			delete(s.byID, id)
		}
	}
	return nil
}
