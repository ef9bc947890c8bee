package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL/MariaDB implementation of Store[S].
//
// Designed for production deployments where multiple workers share one
// checkpoint database and runs must survive process restarts.
//
// Type parameter S is the state type to persist (must be JSON-serializable).
type MySQLStore[S any] struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewMySQLStore creates a MySQL-backed checkpoint store.
//
// The DSN format is the go-sql-driver format:
//
//	user:password@tcp(localhost:3306)/workflows?parseTime=true
//
// Credentials should come from the environment, never from source.
func NewMySQLStore[S any](dsn string) (*MySQLStore[S], error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	s := &MySQLStore[S]{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *MySQLStore[S]) createTables(ctx context.Context) error {
	table := `
		CREATE TABLE IF NOT EXISTS workflow_checkpoints (
			thread_id VARCHAR(255) NOT NULL,
			step INT NOT NULL,
			parent_step INT NOT NULL,
			node_id VARCHAR(255) NOT NULL,
			next_node VARCHAR(255) NOT NULL DEFAULT '',
			state JSON NOT NULL,
			` + "`interrupt`" + ` JSON NULL,
			created_at TIMESTAMP(6) NOT NULL,
			PRIMARY KEY (thread_id, step),
			INDEX idx_checkpoints_thread (thread_id, step)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`
	if _, err := s.db.ExecContext(ctx, table); err != nil {
		return fmt.Errorf("failed to create workflow_checkpoints table: %w", err)
	}
	return nil
}

func (s *MySQLStore[S]) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}

// Close closes the database connection. Double-close is a no-op.
func (s *MySQLStore[S]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *MySQLStore[S]) Ping(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}

// Put persists a checkpoint (implements Store).
func (s *MySQLStore[S]) Put(ctx context.Context, rec Record[S]) error {
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
			(thread_id, step, parent_step, node_id, next_node, state, `+"`interrupt`"+`, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			parent_step = VALUES(parent_step),
			node_id = VALUES(node_id),
			next_node = VALUES(next_node),
			state = VALUES(state),
			`+"`interrupt`"+` = VALUES(`+"`interrupt`"+`),
			created_at = VALUES(created_at)`,
		rec.ThreadID, rec.Step, rec.ParentStep, rec.NodeID, rec.NextNode,
		string(stateJSON), interruptJSON, createdAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

func (s *MySQLStore[S]) scanRecord(row interface{ Scan(...any) error }) (Record[S], error) {
	var rec Record[S]
	var stateJSON string
	var interruptJSON sql.NullString
	var createdAt time.Time
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
	rec.CreatedAt = createdAt.UTC()
	return rec, nil
}

const mysqlRecordColumns = "thread_id, step, parent_step, node_id, next_node, state, `interrupt`, created_at"

// Latest returns the highest-step checkpoint (implements Store).
func (s *MySQLStore[S]) Latest(ctx context.Context, threadID string) (Record[S], error) {
	if err := s.checkOpen(); err != nil {
		var zero Record[S]
		return zero, err
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT `+mysqlRecordColumns+` FROM workflow_checkpoints
		WHERE thread_id = ? ORDER BY step DESC LIMIT 1`, threadID)
	return s.scanRecord(row)
}

// Get returns the checkpoint at a specific step (implements Store).
func (s *MySQLStore[S]) Get(ctx context.Context, threadID string, step int) (Record[S], error) {
	if err := s.checkOpen(); err != nil {
		var zero Record[S]
		return zero, err
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT `+mysqlRecordColumns+` FROM workflow_checkpoints
		WHERE thread_id = ? AND step = ?`, threadID, step)
	return s.scanRecord(row)
}

// History returns the full chain in step order (implements Store).
func (s *MySQLStore[S]) History(ctx context.Context, threadID string) ([]Record[S], error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+mysqlRecordColumns+` FROM workflow_checkpoints
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
func (s *MySQLStore[S]) Suspended(ctx context.Context) ([]string, error) {
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
		WHERE c.`+"`interrupt`"+` IS NOT NULL
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
func (s *MySQLStore[S]) DeleteThread(ctx context.Context, threadID string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM workflow_checkpoints WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("failed to delete thread: %w", err)
	}
	return nil
}

var _ Store[struct{}] = (*MySQLStore[struct{}])(nil)
