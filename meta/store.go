package meta

import (
	"context"
	"time"

	"github.com/roadmapper-ai/roadmapper/roadmap"
)

// TaskStore persists Task rows.
type TaskStore interface {
	// CreateTask inserts a new task. The caller sets TaskID; CreatedAt and
	// UpdatedAt are stamped by the store.
	CreateTask(ctx context.Context, task *Task) error

	// GetTask returns the task or ErrNotFound.
	GetTask(ctx context.Context, taskID string) (*Task, error)

	// UpdateTaskStatus sets status and current step, bumping UpdatedAt.
	// Terminal statuses also stamp CompletedAt.
	UpdateTaskStatus(ctx context.Context, taskID, status, currentStep string) error

	// SetTaskRoadmap records the roadmap this task produced.
	SetTaskRoadmap(ctx context.Context, taskID, roadmapID string) error

	// SetTaskError marks the task failed with a short user-visible message.
	SetTaskError(ctx context.Context, taskID, message string) error

	// FinishTask writes the terminal outcome of a fan-out: final status,
	// execution summary and the failed-concept map.
	FinishTask(ctx context.Context, taskID, status string, summary *ExecutionSummary, failed map[string]ConceptFailure) error

	// ListTasks returns tasks matching status and type created after since.
	// Empty status or taskType match everything.
	ListTasks(ctx context.Context, status, taskType string, since time.Time) ([]*Task, error)
}

// RoadmapStore persists Roadmap rows and their framework JSON column.
type RoadmapStore interface {
	// CreateRoadmap inserts a roadmap. Returns ErrRoadmapIDTaken when the ID
	// exists (including soft-deleted rows, which still hold the ID).
	CreateRoadmap(ctx context.Context, r *Roadmap) error

	// GetRoadmap returns the roadmap or ErrNotFound. Soft-deleted roadmaps
	// are not returned.
	GetRoadmap(ctx context.Context, roadmapID string) (*Roadmap, error)

	// RoadmapIDExists reports whether the ID is in use, soft-deleted rows
	// included.
	RoadmapIDExists(ctx context.Context, roadmapID string) (bool, error)

	// SaveFramework replaces the framework column whole and refreshes the
	// derived totals. This is the only way framework changes reach storage.
	SaveFramework(ctx context.Context, roadmapID string, fw *roadmap.Framework) error

	// ListRoadmapsByUser returns the user's live roadmaps, newest first.
	ListRoadmapsByUser(ctx context.Context, userID string) ([]*Roadmap, error)

	// SoftDeleteRoadmap marks a roadmap deleted without removing rows.
	SoftDeleteRoadmap(ctx context.Context, roadmapID, deletedBy string) error

	// SweepDeleted permanently removes roadmaps soft-deleted before cutoff.
	// Returns the number of rows removed.
	SweepDeleted(ctx context.Context, cutoff time.Time) (int, error)
}

// TutorialStore persists versioned tutorial metadata.
type TutorialStore interface {
	// SaveTutorial inserts a new tutorial version: existing rows for the same
	// (roadmap_id, concept_id) are marked not-latest and the new row becomes
	// latest with ContentVersion = max+1. The switch and the insert run in
	// one short transaction.
	SaveTutorial(ctx context.Context, t *Tutorial) error

	// LatestTutorial returns the row with IsLatest set, or ErrNotFound.
	LatestTutorial(ctx context.Context, roadmapID, conceptID string) (*Tutorial, error)

	// TutorialVersions returns all versions for a concept, newest first.
	TutorialVersions(ctx context.Context, roadmapID, conceptID string) ([]*Tutorial, error)

	// CompletedTutorialConcepts returns the concept IDs whose latest tutorial
	// has completed status. Fan-out uses this to skip finished work on
	// resume.
	CompletedTutorialConcepts(ctx context.Context, roadmapID string) ([]string, error)
}

// ResourceStore persists single-version resource bundles.
type ResourceStore interface {
	// ReplaceResources deletes any prior bundle for the concept and inserts
	// the new one.
	ReplaceResources(ctx context.Context, b *ResourceBundle) error

	// GetResources returns the bundle or ErrNotFound.
	GetResources(ctx context.Context, roadmapID, conceptID string) (*ResourceBundle, error)
}

// QuizStore persists single-version quizzes.
type QuizStore interface {
	// ReplaceQuiz deletes any prior quiz for the concept and inserts the new
	// one.
	ReplaceQuiz(ctx context.Context, q *Quiz) error

	// GetQuiz returns the quiz or ErrNotFound.
	GetQuiz(ctx context.Context, roadmapID, conceptID string) (*Quiz, error)
}

// AuditStore persists the per-round records of the validation/edit/review
// loop.
type AuditStore interface {
	AddValidationRecord(ctx context.Context, rec *ValidationRecord) error
	ListValidationRecords(ctx context.Context, taskID string) ([]*ValidationRecord, error)

	AddEditRecord(ctx context.Context, rec *EditRecord) error
	ListEditRecords(ctx context.Context, taskID string) ([]*EditRecord, error)

	AddReviewFeedback(ctx context.Context, rec *ReviewFeedback) error
	ListReviewFeedback(ctx context.Context, taskID string) ([]*ReviewFeedback, error)

	AddEditPlanRecord(ctx context.Context, rec *EditPlanRecord) error
	ListEditPlanRecords(ctx context.Context, taskID string) ([]*EditPlanRecord, error)
}

// LogStore persists execution-log entries.
type LogStore interface {
	// AppendLogs writes a batch of entries in one transaction. Entries
	// without an ID or timestamp are stamped by the store.
	AppendLogs(ctx context.Context, entries []LogEntry) error

	// QueryLogs returns entries for the task matching the filter, ordered
	// newest-first.
	QueryLogs(ctx context.Context, taskID string, filter LogFilter) ([]LogEntry, error)

	// SummarizeLogs aggregates counts and durations for a task.
	SummarizeLogs(ctx context.Context, taskID string) (*LogSummary, error)
}

// ProfileStore persists user preference profiles.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*UserProfile, error)
	PutProfile(ctx context.Context, p *UserProfile) error
}

// NoteStore persists user notes.
type NoteStore interface {
	AddNote(ctx context.Context, n *Note) error
	ListNotes(ctx context.Context, roadmapID string) ([]*Note, error)
	DeleteNote(ctx context.Context, noteID string) error
}

// ChatStore persists task-scoped chat messages.
type ChatStore interface {
	AddChatMessage(ctx context.Context, m *ChatMessage) error
	ListChat(ctx context.Context, taskID string) ([]*ChatMessage, error)
}

// Store is the full metadata persistence surface consumed by the workflow
// brain and the public API layer.
type Store interface {
	TaskStore
	RoadmapStore
	TutorialStore
	ResourceStore
	QuizStore
	AuditStore
	LogStore
	ProfileStore
	NoteStore
	ChatStore
}
