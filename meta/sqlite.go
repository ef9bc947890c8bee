package meta

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/roadmapper-ai/roadmapper/roadmap"
)

// SQLiteStore is a SQLite implementation of Store.
//
// It keeps every metadata entity in a single-file database. Designed for:
//   - Development and testing with zero setup (":memory:" supported)
//   - Single-process deployments
//   - Durable metadata that survives process restarts
//
// WAL mode is enabled so status polls and event subscribers can read while
// the workflow writes. Nested structures (frameworks, issue lists, failed
// concepts) are serialized JSON columns; they are always written whole
// through the save methods, never mutated in place.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore opens (and if needed creates) the metadata database at
// path. Table creation is idempotent.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
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

	s := &SQLiteStore{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			task_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			task_type TEXT NOT NULL,
			status TEXT NOT NULL,
			current_step TEXT NOT NULL DEFAULT '',
			roadmap_id TEXT NOT NULL DEFAULT '',
			user_request TEXT NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			failed_concepts TEXT,
			execution_summary TEXT,
			worker_ref TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			completed_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status, task_type, created_at)`,
		`CREATE TABLE IF NOT EXISTS roadmaps (
			roadmap_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			task_id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			total_stages INTEGER NOT NULL DEFAULT 0,
			total_concepts INTEGER NOT NULL DEFAULT 0,
			framework TEXT,
			deleted_at TEXT,
			deleted_by TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_roadmaps_user ON roadmaps(user_id, deleted_at)`,
		`CREATE TABLE IF NOT EXISTS tutorials (
			tutorial_id TEXT PRIMARY KEY,
			roadmap_id TEXT NOT NULL,
			concept_id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			content_url TEXT NOT NULL DEFAULT '',
			content_version INTEGER NOT NULL,
			is_latest INTEGER NOT NULL,
			estimated_minutes INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			UNIQUE(roadmap_id, concept_id, content_version)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tutorials_concept ON tutorials(roadmap_id, concept_id, is_latest)`,
		`CREATE TABLE IF NOT EXISTS resource_bundles (
			resources_id TEXT PRIMARY KEY,
			roadmap_id TEXT NOT NULL,
			concept_id TEXT NOT NULL,
			resources TEXT NOT NULL,
			created_at TEXT NOT NULL,
			UNIQUE(roadmap_id, concept_id)
		)`,
		`CREATE TABLE IF NOT EXISTS quizzes (
			quiz_id TEXT PRIMARY KEY,
			roadmap_id TEXT NOT NULL,
			concept_id TEXT NOT NULL,
			questions TEXT NOT NULL,
			created_at TEXT NOT NULL,
			UNIQUE(roadmap_id, concept_id)
		)`,
		`CREATE TABLE IF NOT EXISTS validation_records (
			id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL,
			roadmap_id TEXT NOT NULL DEFAULT '',
			round INTEGER NOT NULL,
			is_valid INTEGER NOT NULL,
			overall_score REAL NOT NULL,
			critical_count INTEGER NOT NULL,
			warning_count INTEGER NOT NULL,
			issues TEXT,
			dimensions TEXT,
			suggestions TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_validation_task ON validation_records(task_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS edit_records (
			id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL,
			roadmap_id TEXT NOT NULL DEFAULT '',
			round INTEGER NOT NULL,
			source TEXT NOT NULL,
			origin_framework TEXT,
			modified_framework TEXT,
			changed_concept_ids TEXT,
			summary TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_edit_task ON edit_records(task_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS review_feedback (
			id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL,
			roadmap_id TEXT NOT NULL DEFAULT '',
			review_round INTEGER NOT NULL,
			approved INTEGER NOT NULL,
			feedback TEXT NOT NULL DEFAULT '',
			framework_snapshot TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_review_task ON review_feedback(task_id, review_round)`,
		`CREATE TABLE IF NOT EXISTS edit_plans (
			id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL,
			roadmap_id TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL,
			plan TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_edit_plans_task ON edit_plans(task_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS execution_logs (
			id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL,
			level TEXT NOT NULL,
			category TEXT NOT NULL,
			step TEXT NOT NULL DEFAULT '',
			agent_name TEXT NOT NULL DEFAULT '',
			concept_id TEXT NOT NULL DEFAULT '',
			roadmap_id TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL,
			details TEXT,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_logs_task ON execution_logs(task_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS user_profiles (
			user_id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL DEFAULT '',
			language TEXT NOT NULL DEFAULT '',
			background TEXT NOT NULL DEFAULT '',
			weekly_hours INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS notes (
			note_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			roadmap_id TEXT NOT NULL,
			concept_id TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notes_roadmap ON notes(roadmap_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
			message_id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_task ON chat_messages(task_id, created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}

// Close closes the database connection. Double-close is a no-op.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}

// timeFormat is fixed-width so stored timestamps sort lexicographically.
// RFC3339Nano trims trailing zeros, which breaks ORDER BY on the text column.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func marshalJSON(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal json column: %w", err)
	}
	return string(data), nil
}

func unmarshalJSON(data sql.NullString, v any) error {
	if !data.Valid || data.String == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(data.String), v); err != nil {
		return fmt.Errorf("failed to unmarshal json column: %w", err)
	}
	return nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// --- TaskStore ---

func (s *SQLiteStore) CreateTask(ctx context.Context, task *Task) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	reqJSON, err := marshalJSON(task.UserRequest)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (task_id, user_id, task_type, status, current_step, roadmap_id,
			user_request, error_message, worker_ref, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.TaskID, task.UserID, task.TaskType, task.Status, task.CurrentStep, task.RoadmapID,
		reqJSON, task.ErrorMessage, task.WorkerRef,
		now.Format(timeFormat), now.Format(timeFormat))
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	task.CreatedAt = now
	task.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) GetTask(ctx context.Context, taskID string) (*Task, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT task_id, user_id, task_type, status, current_step, roadmap_id,
			user_request, error_message, failed_concepts, execution_summary,
			worker_ref, created_at, updated_at, completed_at
		FROM tasks WHERE task_id = ?`, taskID)

	var t Task
	var reqJSON string
	var failedJSON, summaryJSON, completedAt sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&t.TaskID, &t.UserID, &t.TaskType, &t.Status, &t.CurrentStep, &t.RoadmapID,
		&reqJSON, &t.ErrorMessage, &failedJSON, &summaryJSON,
		&t.WorkerRef, &createdAt, &updatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load task: %w", err)
	}
	if err := json.Unmarshal([]byte(reqJSON), &t.UserRequest); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user request: %w", err)
	}
	if err := unmarshalJSON(failedJSON, &t.FailedConcepts); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(summaryJSON, &t.Summary); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if completedAt.Valid && completedAt.String != "" {
		done, err := parseTime(completedAt.String)
		if err != nil {
			return nil, err
		}
		t.CompletedAt = &done
	}
	return &t, nil
}

func (s *SQLiteStore) UpdateTaskStatus(ctx context.Context, taskID, status, currentStep string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	now := time.Now().UTC().Format(timeFormat)
	var res sql.Result
	var err error
	if IsTerminalStatus(status) {
		res, err = s.db.ExecContext(ctx, `
			UPDATE tasks SET status = ?,
				current_step = CASE WHEN ? = '' THEN current_step ELSE ? END,
				updated_at = ?,
				completed_at = COALESCE(completed_at, ?)
			WHERE task_id = ?`,
			status, currentStep, currentStep, now, now, taskID)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE tasks SET status = ?,
				current_step = CASE WHEN ? = '' THEN current_step ELSE ? END,
				updated_at = ?
			WHERE task_id = ?`,
			status, currentStep, currentStep, now, taskID)
	}
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) SetTaskRoadmap(ctx context.Context, taskID, roadmapID string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET roadmap_id = ?, updated_at = ? WHERE task_id = ?`,
		roadmapID, time.Now().UTC().Format(timeFormat), taskID)
	if err != nil {
		return fmt.Errorf("failed to set task roadmap: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) SetTaskError(ctx context.Context, taskID, message string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	now := time.Now().UTC().Format(timeFormat)
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, error_message = ?, updated_at = ?,
			completed_at = COALESCE(completed_at, ?)
		WHERE task_id = ?`,
		TaskFailed, message, now, now, taskID)
	if err != nil {
		return fmt.Errorf("failed to mark task failed: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) FinishTask(ctx context.Context, taskID, status string, summary *ExecutionSummary, failed map[string]ConceptFailure) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	summaryJSON, err := marshalJSON(summary)
	if err != nil {
		return err
	}
	failedJSON, err := marshalJSON(failed)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(timeFormat)
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, execution_summary = ?, failed_concepts = ?,
			updated_at = ?, completed_at = COALESCE(completed_at, ?)
		WHERE task_id = ?`,
		status, summaryJSON, failedJSON, now, now, taskID)
	if err != nil {
		return fmt.Errorf("failed to finish task: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) ListTasks(ctx context.Context, status, taskType string, since time.Time) ([]*Task, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id FROM tasks
		WHERE (? = '' OR status = ?)
		  AND (? = '' OR task_type = ?)
		  AND (? = '' OR created_at >= ?)
		ORDER BY created_at ASC`,
		status, status, taskType, taskType,
		formatSince(since), formatSince(since))
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}

	out := make([]*Task, 0, len(ids))
	for _, id := range ids {
		t, err := s.GetTask(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func formatSince(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeFormat)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- RoadmapStore ---

func (s *SQLiteStore) CreateRoadmap(ctx context.Context, r *Roadmap) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	fwJSON, err := marshalJSON(r.Framework)
	if err != nil {
		return err
	}
	totalStages, totalConcepts := r.TotalStages, r.TotalConcepts
	title := r.Title
	if r.Framework != nil {
		totalStages = len(r.Framework.Stages)
		totalConcepts = r.Framework.ConceptCount()
		if title == "" {
			title = r.Framework.Title
		}
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO roadmaps (roadmap_id, user_id, task_id, title, total_stages,
			total_concepts, framework, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RoadmapID, r.UserID, r.TaskID, title, totalStages, totalConcepts,
		fwJSON, now.Format(timeFormat), now.Format(timeFormat))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrRoadmapIDTaken
		}
		return fmt.Errorf("failed to insert roadmap: %w", err)
	}
	r.CreatedAt = now
	r.UpdatedAt = now
	return nil
}

// isUniqueViolation detects a primary-key or unique-constraint failure
// without depending on driver-specific error types.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return containsFold(msg, "unique") || containsFold(msg, "constraint")
}

func containsFold(s, substr string) bool {
	// Cheap case-insensitive contains for short driver messages.
	lower := func(b byte) byte {
		if 'A' <= b && b <= 'Z' {
			return b + 'a' - 'A'
		}
		return b
	}
	n := len(substr)
	if n == 0 {
		return true
	}
outer:
	for i := 0; i+n <= len(s); i++ {
		for j := 0; j < n; j++ {
			if lower(s[i+j]) != lower(substr[j]) {
				continue outer
			}
		}
		return true
	}
	return false
}

func (s *SQLiteStore) GetRoadmap(ctx context.Context, roadmapID string) (*Roadmap, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT roadmap_id, user_id, task_id, title, total_stages, total_concepts,
			framework, deleted_by, created_at, updated_at
		FROM roadmaps WHERE roadmap_id = ? AND deleted_at IS NULL`, roadmapID)

	var r Roadmap
	var fwJSON sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&r.RoadmapID, &r.UserID, &r.TaskID, &r.Title, &r.TotalStages,
		&r.TotalConcepts, &fwJSON, &r.DeletedBy, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load roadmap: %w", err)
	}
	if fwJSON.Valid && fwJSON.String != "" {
		var fw roadmap.Framework
		if err := json.Unmarshal([]byte(fwJSON.String), &fw); err != nil {
			return nil, fmt.Errorf("failed to unmarshal framework: %w", err)
		}
		r.Framework = &fw
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *SQLiteStore) RoadmapIDExists(ctx context.Context, roadmapID string) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM roadmaps WHERE roadmap_id = ?`, roadmapID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check roadmap id: %w", err)
	}
	return count > 0, nil
}

func (s *SQLiteStore) SaveFramework(ctx context.Context, roadmapID string, fw *roadmap.Framework) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	fwJSON, err := marshalJSON(fw)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE roadmaps SET framework = ?, title = ?, total_stages = ?,
			total_concepts = ?, updated_at = ?
		WHERE roadmap_id = ?`,
		fwJSON, fw.Title, len(fw.Stages), fw.ConceptCount(),
		time.Now().UTC().Format(timeFormat), roadmapID)
	if err != nil {
		return fmt.Errorf("failed to save framework: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) ListRoadmapsByUser(ctx context.Context, userID string) ([]*Roadmap, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT roadmap_id FROM roadmaps
		WHERE user_id = ? AND deleted_at IS NULL
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roadmaps: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan roadmap row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating roadmap rows: %w", err)
	}

	out := make([]*Roadmap, 0, len(ids))
	for _, id := range ids {
		r, err := s.GetRoadmap(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *SQLiteStore) SoftDeleteRoadmap(ctx context.Context, roadmapID, deletedBy string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	now := time.Now().UTC().Format(timeFormat)
	res, err := s.db.ExecContext(ctx, `
		UPDATE roadmaps SET deleted_at = ?, deleted_by = ?, updated_at = ?
		WHERE roadmap_id = ? AND deleted_at IS NULL`,
		now, deletedBy, now, roadmapID)
	if err != nil {
		return fmt.Errorf("failed to soft-delete roadmap: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) SweepDeleted(ctx context.Context, cutoff time.Time) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM roadmaps WHERE deleted_at IS NOT NULL AND deleted_at < ?`,
		cutoff.UTC().Format(timeFormat))
	if err != nil {
		return 0, fmt.Errorf("failed to sweep deleted roadmaps: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return int(n), nil
}

// --- TutorialStore ---

func (s *SQLiteStore) SaveTutorial(ctx context.Context, t *Tutorial) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var maxVersion sql.NullInt64
	err = tx.QueryRowContext(ctx, `
		SELECT MAX(content_version) FROM tutorials
		WHERE roadmap_id = ? AND concept_id = ?`, t.RoadmapID, t.ConceptID).Scan(&maxVersion)
	if err != nil {
		return fmt.Errorf("failed to read max tutorial version: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE tutorials SET is_latest = 0
		WHERE roadmap_id = ? AND concept_id = ? AND is_latest = 1`,
		t.RoadmapID, t.ConceptID)
	if err != nil {
		return fmt.Errorf("failed to clear latest tutorial flag: %w", err)
	}

	if t.TutorialID == "" {
		t.TutorialID = uuid.NewString()
	}
	t.ContentVersion = int(maxVersion.Int64) + 1
	t.IsLatest = true
	t.CreatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tutorials (tutorial_id, roadmap_id, concept_id, title, summary,
			status, content_url, content_version, is_latest, estimated_minutes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		t.TutorialID, t.RoadmapID, t.ConceptID, t.Title, t.Summary,
		t.Status, t.ContentURL, t.ContentVersion, t.EstimatedMinutes,
		t.CreatedAt.Format(timeFormat))
	if err != nil {
		return fmt.Errorf("failed to insert tutorial: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tutorial save: %w", err)
	}
	return nil
}

func (s *SQLiteStore) scanTutorial(row interface{ Scan(...any) error }) (*Tutorial, error) {
	var t Tutorial
	var isLatest int
	var createdAt string
	err := row.Scan(&t.TutorialID, &t.RoadmapID, &t.ConceptID, &t.Title, &t.Summary,
		&t.Status, &t.ContentURL, &t.ContentVersion, &isLatest, &t.EstimatedMinutes, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan tutorial: %w", err)
	}
	t.IsLatest = isLatest != 0
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &t, nil
}

const tutorialColumns = `tutorial_id, roadmap_id, concept_id, title, summary,
	status, content_url, content_version, is_latest, estimated_minutes, created_at`

func (s *SQLiteStore) LatestTutorial(ctx context.Context, roadmapID, conceptID string) (*Tutorial, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT `+tutorialColumns+` FROM tutorials
		WHERE roadmap_id = ? AND concept_id = ? AND is_latest = 1`, roadmapID, conceptID)
	return s.scanTutorial(row)
}

func (s *SQLiteStore) TutorialVersions(ctx context.Context, roadmapID, conceptID string) ([]*Tutorial, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+tutorialColumns+` FROM tutorials
		WHERE roadmap_id = ? AND concept_id = ?
		ORDER BY content_version DESC`, roadmapID, conceptID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tutorial versions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Tutorial
	for rows.Next() {
		t, err := s.scanTutorial(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tutorial rows: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) CompletedTutorialConcepts(ctx context.Context, roadmapID string) ([]string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT concept_id FROM tutorials
		WHERE roadmap_id = ? AND is_latest = 1 AND status = ?
		ORDER BY concept_id`, roadmapID, roadmap.StatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("failed to query completed concepts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan concept id: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating concept rows: %w", err)
	}
	return out, nil
}

// --- ResourceStore ---

func (s *SQLiteStore) ReplaceResources(ctx context.Context, b *ResourceBundle) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	resJSON, err := marshalJSON(b.Resources)
	if err != nil {
		return err
	}
	if b.ResourcesID == "" {
		b.ResourcesID = uuid.NewString()
	}
	b.CreatedAt = time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM resource_bundles WHERE roadmap_id = ? AND concept_id = ?`,
		b.RoadmapID, b.ConceptID)
	if err != nil {
		return fmt.Errorf("failed to delete prior resources: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO resource_bundles (resources_id, roadmap_id, concept_id, resources, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		b.ResourcesID, b.RoadmapID, b.ConceptID, resJSON, b.CreatedAt.Format(timeFormat))
	if err != nil {
		return fmt.Errorf("failed to insert resources: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit resources save: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetResources(ctx context.Context, roadmapID, conceptID string) (*ResourceBundle, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT resources_id, roadmap_id, concept_id, resources, created_at
		FROM resource_bundles WHERE roadmap_id = ? AND concept_id = ?`,
		roadmapID, conceptID)

	var b ResourceBundle
	var resJSON, createdAt string
	err := row.Scan(&b.ResourcesID, &b.RoadmapID, &b.ConceptID, &resJSON, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load resources: %w", err)
	}
	if err := json.Unmarshal([]byte(resJSON), &b.Resources); err != nil {
		return nil, fmt.Errorf("failed to unmarshal resources: %w", err)
	}
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &b, nil
}

// --- QuizStore ---

func (s *SQLiteStore) ReplaceQuiz(ctx context.Context, q *Quiz) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	qJSON, err := marshalJSON(q.Questions)
	if err != nil {
		return err
	}
	if q.QuizID == "" {
		q.QuizID = uuid.NewString()
	}
	q.CreatedAt = time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM quizzes WHERE roadmap_id = ? AND concept_id = ?`,
		q.RoadmapID, q.ConceptID)
	if err != nil {
		return fmt.Errorf("failed to delete prior quiz: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO quizzes (quiz_id, roadmap_id, concept_id, questions, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		q.QuizID, q.RoadmapID, q.ConceptID, qJSON, q.CreatedAt.Format(timeFormat))
	if err != nil {
		return fmt.Errorf("failed to insert quiz: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit quiz save: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetQuiz(ctx context.Context, roadmapID, conceptID string) (*Quiz, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT quiz_id, roadmap_id, concept_id, questions, created_at
		FROM quizzes WHERE roadmap_id = ? AND concept_id = ?`,
		roadmapID, conceptID)

	var q Quiz
	var qJSON, createdAt string
	err := row.Scan(&q.QuizID, &q.RoadmapID, &q.ConceptID, &qJSON, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load quiz: %w", err)
	}
	if err := json.Unmarshal([]byte(qJSON), &q.Questions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal quiz questions: %w", err)
	}
	if q.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &q, nil
}

// --- AuditStore ---

func (s *SQLiteStore) AddValidationRecord(ctx context.Context, rec *ValidationRecord) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	issuesJSON, err := marshalJSON(rec.Issues)
	if err != nil {
		return err
	}
	dimsJSON, err := marshalJSON(rec.Dimensions)
	if err != nil {
		return err
	}
	sugJSON, err := marshalJSON(rec.Suggestions)
	if err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.CreatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO validation_records (id, task_id, roadmap_id, round, is_valid,
			overall_score, critical_count, warning_count, issues, dimensions,
			suggestions, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.TaskID, rec.RoadmapID, rec.Round, boolInt(rec.IsValid),
		rec.OverallScore, rec.CriticalCount, rec.WarningCount, issuesJSON,
		dimsJSON, sugJSON, rec.CreatedAt.Format(timeFormat))
	if err != nil {
		return fmt.Errorf("failed to insert validation record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListValidationRecords(ctx context.Context, taskID string) ([]*ValidationRecord, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, roadmap_id, round, is_valid, overall_score,
			critical_count, warning_count, issues, dimensions, suggestions, created_at
		FROM validation_records WHERE task_id = ? ORDER BY created_at ASC, round ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list validation records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*ValidationRecord
	for rows.Next() {
		var rec ValidationRecord
		var isValid int
		var issuesJSON, dimsJSON, sugJSON sql.NullString
		var createdAt string
		err := rows.Scan(&rec.ID, &rec.TaskID, &rec.RoadmapID, &rec.Round, &isValid,
			&rec.OverallScore, &rec.CriticalCount, &rec.WarningCount,
			&issuesJSON, &dimsJSON, &sugJSON, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan validation record: %w", err)
		}
		rec.IsValid = isValid != 0
		if err := unmarshalJSON(issuesJSON, &rec.Issues); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(dimsJSON, &rec.Dimensions); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(sugJSON, &rec.Suggestions); err != nil {
			return nil, err
		}
		if rec.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating validation rows: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) AddEditRecord(ctx context.Context, rec *EditRecord) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	originJSON, err := marshalJSON(rec.OriginFramework)
	if err != nil {
		return err
	}
	modifiedJSON, err := marshalJSON(rec.ModifiedFramework)
	if err != nil {
		return err
	}
	changedJSON, err := marshalJSON(rec.ChangedConceptIDs)
	if err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.CreatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO edit_records (id, task_id, roadmap_id, round, source,
			origin_framework, modified_framework, changed_concept_ids, summary, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.TaskID, rec.RoadmapID, rec.Round, rec.Source,
		originJSON, modifiedJSON, changedJSON, rec.Summary,
		rec.CreatedAt.Format(timeFormat))
	if err != nil {
		return fmt.Errorf("failed to insert edit record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListEditRecords(ctx context.Context, taskID string) ([]*EditRecord, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, roadmap_id, round, source, origin_framework,
			modified_framework, changed_concept_ids, summary, created_at
		FROM edit_records WHERE task_id = ? ORDER BY created_at ASC, round ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list edit records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*EditRecord
	for rows.Next() {
		var rec EditRecord
		var originJSON, modifiedJSON, changedJSON sql.NullString
		var createdAt string
		err := rows.Scan(&rec.ID, &rec.TaskID, &rec.RoadmapID, &rec.Round, &rec.Source,
			&originJSON, &modifiedJSON, &changedJSON, &rec.Summary, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan edit record: %w", err)
		}
		if err := unmarshalJSON(originJSON, &rec.OriginFramework); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(modifiedJSON, &rec.ModifiedFramework); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(changedJSON, &rec.ChangedConceptIDs); err != nil {
			return nil, err
		}
		if rec.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating edit rows: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) AddReviewFeedback(ctx context.Context, rec *ReviewFeedback) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	snapJSON, err := marshalJSON(rec.FrameworkSnapshot)
	if err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.CreatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO review_feedback (id, task_id, roadmap_id, review_round,
			approved, feedback, framework_snapshot, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.TaskID, rec.RoadmapID, rec.ReviewRound,
		boolInt(rec.Approved), rec.Feedback, snapJSON,
		rec.CreatedAt.Format(timeFormat))
	if err != nil {
		return fmt.Errorf("failed to insert review feedback: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListReviewFeedback(ctx context.Context, taskID string) ([]*ReviewFeedback, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, roadmap_id, review_round, approved, feedback,
			framework_snapshot, created_at
		FROM review_feedback WHERE task_id = ? ORDER BY review_round ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list review feedback: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*ReviewFeedback
	for rows.Next() {
		var rec ReviewFeedback
		var approved int
		var snapJSON sql.NullString
		var createdAt string
		err := rows.Scan(&rec.ID, &rec.TaskID, &rec.RoadmapID, &rec.ReviewRound,
			&approved, &rec.Feedback, &snapJSON, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review feedback: %w", err)
		}
		rec.Approved = approved != 0
		if err := unmarshalJSON(snapJSON, &rec.FrameworkSnapshot); err != nil {
			return nil, err
		}
		if rec.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating review rows: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) AddEditPlanRecord(ctx context.Context, rec *EditPlanRecord) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	planJSON, err := marshalJSON(rec.Plan)
	if err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.CreatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO edit_plans (id, task_id, roadmap_id, source, plan, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.TaskID, rec.RoadmapID, rec.Source, planJSON,
		rec.CreatedAt.Format(timeFormat))
	if err != nil {
		return fmt.Errorf("failed to insert edit plan: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListEditPlanRecords(ctx context.Context, taskID string) ([]*EditPlanRecord, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, roadmap_id, source, plan, created_at
		FROM edit_plans WHERE task_id = ? ORDER BY created_at ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list edit plans: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*EditPlanRecord
	for rows.Next() {
		var rec EditPlanRecord
		var planJSON sql.NullString
		var createdAt string
		err := rows.Scan(&rec.ID, &rec.TaskID, &rec.RoadmapID, &rec.Source, &planJSON, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan edit plan: %w", err)
		}
		if err := unmarshalJSON(planJSON, &rec.Plan); err != nil {
			return nil, err
		}
		if rec.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating edit plan rows: %w", err)
	}
	return out, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// --- LogStore ---

func (s *SQLiteStore) AppendLogs(ctx context.Context, entries []LogEntry) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO execution_logs (id, task_id, level, category, step, agent_name,
			concept_id, roadmap_id, message, details, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare log insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range entries {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now().UTC()
		}
		var detailsJSON string
		detailsJSON, err = marshalJSON(e.Details)
		if err != nil {
			return err
		}
		_, err = stmt.ExecContext(ctx, e.ID, e.TaskID, e.Level, e.Category, e.Step,
			e.AgentName, e.ConceptID, e.RoadmapID, e.Message, detailsJSON,
			e.DurationMS, e.CreatedAt.Format(timeFormat))
		if err != nil {
			return fmt.Errorf("failed to insert log entry: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit log batch: %w", err)
	}
	return nil
}

func (s *SQLiteStore) QueryLogs(ctx context.Context, taskID string, filter LogFilter) ([]LogEntry, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, level, category, step, agent_name, concept_id,
			roadmap_id, message, details, duration_ms, created_at
		FROM execution_logs
		WHERE task_id = ?
		  AND (? = '' OR level = ?)
		  AND (? = '' OR category = ?)
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`,
		taskID, filter.Level, filter.Level, filter.Category, filter.Category,
		limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []LogEntry
	for rows.Next() {
		var e LogEntry
		var detailsJSON sql.NullString
		var createdAt string
		err := rows.Scan(&e.ID, &e.TaskID, &e.Level, &e.Category, &e.Step,
			&e.AgentName, &e.ConceptID, &e.RoadmapID, &e.Message, &detailsJSON,
			&e.DurationMS, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		if err := unmarshalJSON(detailsJSON, &e.Details); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating log rows: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) SummarizeLogs(ctx context.Context, taskID string) (*LogSummary, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	sum := &LogSummary{
		CountsByLevel: make(map[string]int),
		CountsByCat:   make(map[string]int),
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT level, category, duration_ms, created_at
		FROM execution_logs WHERE task_id = ?`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var level, category, createdAt string
		var durationMS int64
		if err := rows.Scan(&level, &category, &durationMS, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan log summary row: %w", err)
		}
		ts, err := parseTime(createdAt)
		if err != nil {
			return nil, err
		}
		sum.Total++
		sum.CountsByLevel[level]++
		sum.CountsByCat[category]++
		sum.TotalDurationMS += durationMS
		if sum.FirstAt.IsZero() || ts.Before(sum.FirstAt) {
			sum.FirstAt = ts
		}
		if ts.After(sum.LastAt) {
			sum.LastAt = ts
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating log summary rows: %w", err)
	}
	return sum, nil
}

// --- ProfileStore ---

func (s *SQLiteStore) GetProfile(ctx context.Context, userID string) (*UserProfile, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, display_name, language, background, weekly_hours, updated_at
		FROM user_profiles WHERE user_id = ?`, userID)

	var p UserProfile
	var updatedAt string
	err := row.Scan(&p.UserID, &p.DisplayName, &p.Language, &p.Background,
		&p.WeeklyHours, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SQLiteStore) PutProfile(ctx context.Context, p *UserProfile) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	p.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_profiles (user_id, display_name, language, background, weekly_hours, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			display_name = excluded.display_name,
			language = excluded.language,
			background = excluded.background,
			weekly_hours = excluded.weekly_hours,
			updated_at = excluded.updated_at`,
		p.UserID, p.DisplayName, p.Language, p.Background, p.WeeklyHours,
		p.UpdatedAt.Format(timeFormat))
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

// --- NoteStore ---

func (s *SQLiteStore) AddNote(ctx context.Context, n *Note) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if n.NoteID == "" {
		n.NoteID = uuid.NewString()
	}
	now := time.Now().UTC()
	n.CreatedAt = now
	n.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notes (note_id, user_id, roadmap_id, concept_id, body, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.NoteID, n.UserID, n.RoadmapID, n.ConceptID, n.Body,
		now.Format(timeFormat), now.Format(timeFormat))
	if err != nil {
		return fmt.Errorf("failed to insert note: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListNotes(ctx context.Context, roadmapID string) ([]*Note, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT note_id, user_id, roadmap_id, concept_id, body, created_at, updated_at
		FROM notes WHERE roadmap_id = ? ORDER BY created_at ASC`, roadmapID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Note
	for rows.Next() {
		var n Note
		var createdAt, updatedAt string
		if err := rows.Scan(&n.NoteID, &n.UserID, &n.RoadmapID, &n.ConceptID,
			&n.Body, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		if n.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if n.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		out = append(out, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating note rows: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) DeleteNote(ctx context.Context, noteID string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE note_id = ?`, noteID)
	if err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}
	return requireRow(res)
}

// --- ChatStore ---

func (s *SQLiteStore) AddChatMessage(ctx context.Context, m *ChatMessage) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if m.MessageID == "" {
		m.MessageID = uuid.NewString()
	}
	m.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_messages (message_id, task_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		m.MessageID, m.TaskID, m.Role, m.Content, m.CreatedAt.Format(timeFormat))
	if err != nil {
		return fmt.Errorf("failed to insert chat message: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListChat(ctx context.Context, taskID string) ([]*ChatMessage, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, task_id, role, content, created_at
		FROM chat_messages WHERE task_id = ? ORDER BY created_at ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*ChatMessage
	for rows.Next() {
		var m ChatMessage
		var createdAt string
		if err := rows.Scan(&m.MessageID, &m.TaskID, &m.Role, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		if m.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat rows: %w", err)
	}
	return out, nil
}

var _ Store = (*SQLiteStore)(nil)
