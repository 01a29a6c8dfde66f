// Package file is a checkpoint.Store backed by one JSON file per
// checkpoint on disk, useful for local development and CLI runs where
// a database is overkill.
package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/wendao-project/wendao-kernel/checkpoint"
)

// Store implements checkpoint.Store by writing one <checkpoint_id>.json
// file per checkpoint under path.
type Store struct {
	mu   sync.Mutex
	path string
}

// New creates path (if missing) and returns a Store rooted there.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}
	return &Store{path: path}, nil
}

func (s *Store) filename(checkpointID string) string {
	return filepath.Join(s.path, checkpointID+".json")
}

func (s *Store) Save(_ context.Context, cp *checkpoint.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	return os.WriteFile(s.filename(cp.CheckpointID), data, 0o600)
}

func (s *Store) Load(_ context.Context, checkpointID string) (*checkpoint.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filename(checkpointID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, checkpoint.ErrNotFound
		}
		return nil, err
	}
	var cp checkpoint.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *Store) ListTimeline(_ context.Context, threadID string, limit int) ([]*checkpoint.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.path)
	if err != nil {
		return nil, err
	}

	var out []*checkpoint.Checkpoint
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.path, e.Name()))
		if err != nil {
			continue
		}
		var cp checkpoint.Checkpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			continue
		}
		if cp.ThreadID == threadID {
			out = append(out, &cp)
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

	err := os.Remove(s.filename(checkpointID))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *Store) Clear(ctx context.Context, threadID string) error {
	timeline, err := s.ListTimeline(ctx, threadID, 0)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cp := range timeline {
		if err := os.Remove(s.filename(cp.CheckpointID)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
