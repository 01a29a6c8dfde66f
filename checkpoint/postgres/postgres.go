// Package postgres is a checkpoint.Store backed by PostgreSQL via
// pgx/v5, for deployments that already run Postgres for everything
// else and want the checkpoint timeline alongside it.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wendao-project/wendao-kernel/checkpoint"
)

// DBPool is the subset of *pgxpool.Pool this store needs, pulled out
// so tests can substitute pgxmock.
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store implements checkpoint.Store over a single Postgres table.
type Store struct {
	pool      DBPool
	tableName string
}

// Options configures a Store.
type Options struct {
	ConnString string
	TableName  string // default "checkpoints"
}

// New dials a fresh connection pool.
func New(ctx context.Context, opts Options) (*Store, error) {
	pool, err := pgxpool.New(ctx, opts.ConnString)
	if err != nil {
		return nil, fmt.Errorf("checkpoint/postgres: creating pool: %w", err)
	}
	return NewWithPool(pool, opts.TableName), nil
}

// NewWithPool wraps an already-constructed pool (or mock), useful for
// tests against pgxmock.
func NewWithPool(pool DBPool, tableName string) *Store {
	if tableName == "" {
		tableName = "checkpoints"
	}
	return &Store{pool: pool, tableName: tableName}
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
			timestamp_unix_ms BIGINT NOT NULL,
			preview TEXT,
			reason TEXT,
			payload JSONB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%s_thread_id ON %s (thread_id, step);
	`, s.tableName, s.tableName, s.tableName)

	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("checkpoint/postgres: creating schema: %w", err)
	}
	return nil
}

// Close closes the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Save(ctx context.Context, cp *checkpoint.Checkpoint) error {
	payloadJSON, err := json.Marshal(cp.Payload)
	if err != nil {
		return fmt.Errorf("checkpoint/postgres: marshaling payload: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (checkpoint_id, thread_id, parent_checkpoint_id, step, timestamp_unix_ms, preview, reason, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (checkpoint_id) DO UPDATE SET
			thread_id = EXCLUDED.thread_id,
			parent_checkpoint_id = EXCLUDED.parent_checkpoint_id,
			step = EXCLUDED.step,
			timestamp_unix_ms = EXCLUDED.timestamp_unix_ms,
			preview = EXCLUDED.preview,
			reason = EXCLUDED.reason,
			payload = EXCLUDED.payload
	`, s.tableName)

	_, err = s.pool.Exec(ctx, query,
		cp.CheckpointID, cp.ThreadID, cp.ParentCheckpointID, cp.Step,
		cp.TimestampUnixMs, cp.Preview, cp.Reason, payloadJSON,
	)
	if err != nil {
		return fmt.Errorf("checkpoint/postgres: saving checkpoint: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, checkpointID string) (*checkpoint.Checkpoint, error) {
	query := fmt.Sprintf(`
		SELECT checkpoint_id, thread_id, parent_checkpoint_id, step, timestamp_unix_ms, preview, reason, payload
		FROM %s WHERE checkpoint_id = $1
	`, s.tableName)

	var cp checkpoint.Checkpoint
	var payloadJSON []byte
	err := s.pool.QueryRow(ctx, query, checkpointID).Scan(
		&cp.CheckpointID, &cp.ThreadID, &cp.ParentCheckpointID, &cp.Step,
		&cp.TimestampUnixMs, &cp.Preview, &cp.Reason, &payloadJSON,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, checkpoint.ErrNotFound
		}
		return nil, fmt.Errorf("checkpoint/postgres: loading checkpoint: %w", err)
	}
	if err := json.Unmarshal(payloadJSON, &cp.Payload); err != nil {
		return nil, fmt.Errorf("checkpoint/postgres: unmarshaling payload: %w", err)
	}
	return &cp, nil
}

func (s *Store) ListTimeline(ctx context.Context, threadID string, limit int) ([]*checkpoint.Checkpoint, error) {
	query := fmt.Sprintf(`
		SELECT checkpoint_id, thread_id, parent_checkpoint_id, step, timestamp_unix_ms, preview, reason, payload
		FROM %s WHERE thread_id = $1 ORDER BY step ASC
	`, s.tableName)

	rows, err := s.pool.Query(ctx, query, threadID)
	if err != nil {
		return nil, fmt.Errorf("checkpoint/postgres: listing timeline: %w", err)
	}
	defer rows.Close()

	var out []*checkpoint.Checkpoint
	for rows.Next() {
		var cp checkpoint.Checkpoint
		var payloadJSON []byte
		if err := rows.Scan(&cp.CheckpointID, &cp.ThreadID, &cp.ParentCheckpointID, &cp.Step,
			&cp.TimestampUnixMs, &cp.Preview, &cp.Reason, &payloadJSON); err != nil {
			return nil, fmt.Errorf("checkpoint/postgres: scanning row: %w", err)
		}
		if err := json.Unmarshal(payloadJSON, &cp.Payload); err != nil {
			return nil, fmt.Errorf("checkpoint/postgres: unmarshaling payload: %w", err)
		}
		out = append(out, &cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("checkpoint/postgres: iterating rows: %w", err)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, checkpointID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE checkpoint_id = $1", s.tableName)
	if _, err := s.pool.Exec(ctx, query, checkpointID); err != nil {
		return fmt.Errorf("checkpoint/postgres: deleting checkpoint: %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context, threadID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE thread_id = $1", s.tableName)
	if _, err := s.pool.Exec(ctx, query, threadID); err != nil {
		return fmt.Errorf("checkpoint/postgres: clearing thread: %w", err)
	}
	return nil
}
