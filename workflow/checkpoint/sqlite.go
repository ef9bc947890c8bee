package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite implementation of Store[S].
//
// It stores checkpoint chains in a single-file database. Designed for:
//   - Development and testing with zero setup (":memory:" supported)
//   - Single-process deployments that must survive restarts
//
// WAL mode is enabled so status reads don't block the executor's writes.
//
// Type parameter S is the state type to persist (must be JSON-serializable).
type SQLiteStore[S any] struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore opens (and if needed creates) the checkpoint database at
// path. Table creation is idempotent.
func NewSQLiteStore[S any](path string) (*SQLiteStore[S], error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore[S]{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore[S]) createTables(ctx context.Context) error {
	table := `
		CREATE TABLE IF NOT EXISTS workflow_checkpoints (
			thread_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			parent_step INTEGER NOT NULL,
			node_id TEXT NOT NULL,
			next_node TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL,
			interrupt TEXT,
			created_at TEXT NOT NULL,
			PRIMARY KEY (thread_id, step)
		)`
	if _, err := s.db.ExecContext(ctx, table); err != nil {
		return fmt.Errorf("failed to create workflow_checkpoints table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		"CREATE INDEX IF NOT EXISTS idx_checkpoints_thread ON workflow_checkpoints(thread_id, step)"); err != nil {
		return fmt.Errorf("failed to create idx_checkpoints_thread: %w", err)
	}
	return nil
}

func (s *SQLiteStore[S]) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}

// Close closes the database connection. Double-close is a no-op.
func (s *SQLiteStore[S]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *SQLiteStore[S]) Ping(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}

// Put persists a checkpoint (implements Store).
func (s *SQLiteStore[S]) Put(ctx context.Context, rec Record[S]) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if rec.ThreadID == "" {
		return fmt.Errorf("checkpoint thread ID is empty")
	}
	if rec.Step < 1 {
		return fmt.Errorf("checkpoint step must be >= 1, got %d", rec.Step)
	}

	stateJSON, err := json.Marshal(rec.State)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	var interruptJSON sql.NullString
	if rec.Interrupt != nil {
		data, err := json.Marshal(rec.Interrupt)
		if err != nil {
			return fmt.Errorf("failed to marshal interrupt: %w", err)
		}
		interruptJSON = sql.NullString{String: string(data), Valid: true}
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflow_checkpoints
			(thread_id, step, parent_step, node_id, next_node, state, interrupt, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(thread_id, step) DO UPDATE SET
			parent_step = excluded.parent_step,
			node_id = excluded.node_id,
			next_node = excluded.next_node,
			state = excluded.state,
			interrupt = excluded.interrupt,
			created_at = excluded.created_at`,
		rec.ThreadID, rec.Step, rec.ParentStep, rec.NodeID, rec.NextNode,
		string(stateJSON), interruptJSON, createdAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

func (s *SQLiteStore[S]) scanRecord(row interface{ Scan(...any) error }) (Record[S], error) {
	var rec Record[S]
	var stateJSON, createdAt string
	var interruptJSON sql.NullString
	err := row.Scan(&rec.ThreadID, &rec.Step, &rec.ParentStep, &rec.NodeID,
		&rec.NextNode, &stateJSON, &interruptJSON, &createdAt)
	if err == sql.ErrNoRows {
		var zero Record[S]
		return zero, ErrNotFound
	}
	if err != nil {
		var zero Record[S]
		return zero, fmt.Errorf("failed to scan checkpoint: %w", err)
	}
	if err := json.Unmarshal([]byte(stateJSON), &rec.State); err != nil {
		var zero Record[S]
		return zero, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	if interruptJSON.Valid && interruptJSON.String != "" {
		var in Interrupt
		if err := json.Unmarshal([]byte(interruptJSON.String), &in); err != nil {
			var zero Record[S]
			return zero, fmt.Errorf("failed to unmarshal interrupt: %w", err)
		}
		rec.Interrupt = &in
	}
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		var zero Record[S]
		return zero, fmt.Errorf("failed to parse checkpoint timestamp: %w", err)
	}
	return rec, nil
}

const recordColumns = `thread_id, step, parent_step, node_id, next_node, state, interrupt, created_at`

// Latest returns the highest-step checkpoint (implements Store).
func (s *SQLiteStore[S]) Latest(ctx context.Context, threadID string) (Record[S], error) {
	if err := s.checkOpen(); err != nil {
		var zero Record[S]
		return zero, err
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM workflow_checkpoints
		WHERE thread_id = ? ORDER BY step DESC LIMIT 1`, threadID)
	return s.scanRecord(row)
}

// Get returns the checkpoint at a specific step (implements Store).
func (s *SQLiteStore[S]) Get(ctx context.Context, threadID string, step int) (Record[S], error) {
	if err := s.checkOpen(); err != nil {
		var zero Record[S]
		return zero, err
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM workflow_checkpoints
		WHERE thread_id = ? AND step = ?`, threadID, step)
	return s.scanRecord(row)
}

// History returns the full chain in step order (implements Store).
func (s *SQLiteStore[S]) History(ctx context.Context, threadID string) ([]Record[S], error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM workflow_checkpoints
		WHERE thread_id = ? ORDER BY step ASC`, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to query checkpoint history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Record[S]
	for rows.Next() {
		rec, err := s.scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating checkpoint rows: %w", err)
	}
	return out, nil
}

// Suspended returns threads whose latest checkpoint is interrupted
// (implements Store).
func (s *SQLiteStore[S]) Suspended(ctx context.Context) ([]string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.thread_id
		FROM workflow_checkpoints c
		JOIN (
			SELECT thread_id, MAX(step) AS max_step
			FROM workflow_checkpoints
			GROUP BY thread_id
		) latest ON c.thread_id = latest.thread_id AND c.step = latest.max_step
		WHERE c.interrupt IS NOT NULL
		ORDER BY c.thread_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query suspended threads: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan thread id: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating thread rows: %w", err)
	}
	return out, nil
}

// DeleteThread removes a thread's chain (implements Store).
func (s *SQLiteStore[S]) DeleteThread(ctx context.Context, threadID string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM workflow_checkpoints WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("failed to delete thread: %w", err)
	}
	return nil
}

var _ Store[struct{}] = (*SQLiteStore[struct{}])(nil)
