// Package sqlite is a checkpoint.Store backed by SQLite via
// github.com/mattn/go-sqlite3, for single-file durable local storage.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/wendao-project/wendao-kernel/checkpoint"
)

// Store implements checkpoint.Store over a single SQLite table.
type Store struct {
	db        *sql.DB
	tableName string
}

// Options configures a Store.
type Options struct {
	Path      string
	TableName string // default "checkpoints"
}

// New opens (creating if needed) the SQLite database at opts.Path and
// ensures the checkpoint table exists.
func New(opts Options) (*Store, error) {
	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("checkpoint/sqlite: opening database: %w", err)
	}

	tableName := opts.TableName
	if tableName == "" {
		tableName = "checkpoints"
	}
	store := &Store{db: db, tableName: tableName}
	if err := store.InitSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// InitSchema creates the checkpoint table and its thread_id index if
// they don't already exist.
func (s *Store) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			checkpoint_id TEXT PRIMARY KEY,
			thread_id TEXT NOT NULL,
			parent_checkpoint_id TEXT,
			step INTEGER NOT NULL,
			timestamp_unix_ms INTEGER NOT NULL,
			preview TEXT,
			reason TEXT,
			payload TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%s_thread_id ON %s (thread_id, step);
	`, s.tableName, s.tableName, s.tableName)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("checkpoint/sqlite: creating schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Save(ctx context.Context, cp *checkpoint.Checkpoint) error {
	payloadJSON, err := json.Marshal(cp.Payload)
	if err != nil {
		return fmt.Errorf("checkpoint/sqlite: marshaling payload: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (checkpoint_id, thread_id, parent_checkpoint_id, step, timestamp_unix_ms, preview, reason, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(checkpoint_id) DO UPDATE SET
			thread_id = excluded.thread_id,
			parent_checkpoint_id = excluded.parent_checkpoint_id,
			step = excluded.step,
			timestamp_unix_ms = excluded.timestamp_unix_ms,
			preview = excluded.preview,
			reason = excluded.reason,
			payload = excluded.payload
	`, s.tableName)

	_, err = s.db.ExecContext(ctx, query,
		cp.CheckpointID, cp.ThreadID, cp.ParentCheckpointID, cp.Step,
		cp.TimestampUnixMs, cp.Preview, cp.Reason, string(payloadJSON),
	)
	if err != nil {
		return fmt.Errorf("checkpoint/sqlite: saving checkpoint: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, checkpointID string) (*checkpoint.Checkpoint, error) {
	query := fmt.Sprintf(`
		SELECT checkpoint_id, thread_id, parent_checkpoint_id, step, timestamp_unix_ms, preview, reason, payload
		FROM %s WHERE checkpoint_id = ?
	`, s.tableName)

	var cp checkpoint.Checkpoint
	var payloadJSON string
	err := s.db.QueryRowContext(ctx, query, checkpointID).Scan(
		&cp.CheckpointID, &cp.ThreadID, &cp.ParentCheckpointID, &cp.Step,
		&cp.TimestampUnixMs, &cp.Preview, &cp.Reason, &payloadJSON,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, checkpoint.ErrNotFound
		}
		return nil, fmt.Errorf("checkpoint/sqlite: loading checkpoint: %w", err)
	}
	if err := json.Unmarshal([]byte(payloadJSON), &cp.Payload); err != nil {
		return nil, fmt.Errorf("checkpoint/sqlite: unmarshaling payload: %w", err)
	}
	return &cp, nil
}

func (s *Store) ListTimeline(ctx context.Context, threadID string, limit int) ([]*checkpoint.Checkpoint, error) {
	query := fmt.Sprintf(`
		SELECT checkpoint_id, thread_id, parent_checkpoint_id, step, timestamp_unix_ms, preview, reason, payload
		FROM %s WHERE thread_id = ? ORDER BY step ASC
	`, s.tableName)

	rows, err := s.db.QueryContext(ctx, query, threadID)
	if err != nil {
		return nil, fmt.Errorf("checkpoint/sqlite: listing timeline: %w", err)
	}
	defer rows.Close()

	var out []*checkpoint.Checkpoint
	for rows.Next() {
		var cp checkpoint.Checkpoint
		var payloadJSON string
		if err := rows.Scan(&cp.CheckpointID, &cp.ThreadID, &cp.ParentCheckpointID, &cp.Step,
			&cp.TimestampUnixMs, &cp.Preview, &cp.Reason, &payloadJSON); err != nil {
			return nil, fmt.Errorf("checkpoint/sqlite: scanning row: %w", err)
		}
		if err := json.Unmarshal([]byte(payloadJSON), &cp.Payload); err != nil {
			return nil, fmt.Errorf("checkpoint/sqlite: unmarshaling payload: %w", err)
		}
		out = append(out, &cp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, checkpointID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE checkpoint_id = ?", s.tableName)
	if _, err := s.db.ExecContext(ctx, query, checkpointID); err != nil {
		return fmt.Errorf("checkpoint/sqlite: deleting checkpoint: %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context, threadID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE thread_id = ?", s.tableName)
	if _, err := s.db.ExecContext(ctx, query, threadID); err != nil {
		return fmt.Errorf("checkpoint/sqlite: clearing thread: %w", err)
	}
	return nil
}
