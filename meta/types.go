// Package meta provides typed persistence for the workflow's durable
// entities: tasks, roadmaps, tutorials, resource bundles, quizzes, the audit
// records written by the validation/edit/review loop, execution logs, user
// profiles, notes and chats.
//
// Two backends are provided: MemStore for tests and single-process use, and
// SQLiteStore backed by modernc.org/sqlite. Both satisfy Store.
package meta

import (
	"errors"
	"time"

	"github.com/roadmapper-ai/roadmapper/roadmap"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrRoadmapIDTaken is returned when creating a roadmap whose ID is already
// in use. A unique constraint backstops the uniqueness loop in the intent
// runner.
var ErrRoadmapIDTaken = errors.New("roadmap id already exists")

// Task statuses. Transitions are monotonic except the
// human_review_pending -> processing resume edge.
const (
	TaskPending            = "pending"
	TaskProcessing         = "processing"
	TaskHumanReviewPending = "human_review_pending"
	TaskCompleted          = "completed"
	TaskPartialFailure     = "partial_failure"
	TaskFailed             = "failed"
	TaskCancelled          = "cancelled"
)

// Task types.
const (
	TaskTypeCreation       = "creation"
	TaskTypeRetryTutorial  = "retry_tutorial"
	TaskTypeRetryResources = "retry_resources"
	TaskTypeRetryQuiz      = "retry_quiz"
	TaskTypeRetryBatch     = "retry_batch"
)

// IsTerminalStatus reports whether a task status is terminal.
func IsTerminalStatus(status string) bool {
	switch status {
	case TaskCompleted, TaskPartialFailure, TaskFailed, TaskCancelled:
		return true
	}
	return false
}

// ConceptFailure records why a single concept failed during fan-out.
type ConceptFailure struct {
	ConceptID   string    `json:"concept_id"`
	ConceptName string    `json:"concept_name,omitempty"`
	Reason      string    `json:"reason"`
	FailedAt    time.Time `json:"failed_at"`
}

// ExecutionSummary counts the artifacts a completed workflow produced.
type ExecutionSummary struct {
	ConceptsAttempted int `json:"concepts_attempted"`
	ConceptsSucceeded int `json:"concepts_succeeded"`
	ConceptsFailed    int `json:"concepts_failed"`
	Tutorials         int `json:"tutorials"`
	ResourceBundles   int `json:"resource_bundles"`
	Quizzes           int `json:"quizzes"`
}

// Task is the primary entity of a workflow instance. TaskID doubles as the
// checkpoint thread identifier.
type Task struct {
	TaskID         string                    `json:"task_id"`
	UserID         string                    `json:"user_id"`
	TaskType       string                    `json:"task_type"`
	Status         string                    `json:"status"`
	CurrentStep    string                    `json:"current_step,omitempty"`
	RoadmapID      string                    `json:"roadmap_id,omitempty"`
	UserRequest    roadmap.UserRequest       `json:"user_request"`
	ErrorMessage   string                    `json:"error_message,omitempty"`
	FailedConcepts map[string]ConceptFailure `json:"failed_concepts,omitempty"`
	Summary        *ExecutionSummary         `json:"execution_summary,omitempty"`
	WorkerRef      string                    `json:"worker_ref,omitempty"` // external worker correlation id
	CreatedAt      time.Time                 `json:"created_at"`
	UpdatedAt      time.Time                 `json:"updated_at"`
	CompletedAt    *time.Time                `json:"completed_at,omitempty"`
}

// Roadmap is the stored metadata row for one roadmap, owning the framework
// tree as an opaque JSON column. The framework must be saved through
// SaveFramework so the column is rewritten whole; nested in-place mutation
// of a loaded framework is not tracked.
type Roadmap struct {
	RoadmapID     string             `json:"roadmap_id"`
	UserID        string             `json:"user_id"`
	TaskID        string             `json:"task_id"`
	Title         string             `json:"title"`
	TotalStages   int                `json:"total_stages"`
	TotalConcepts int                `json:"total_concepts"`
	Framework     *roadmap.Framework `json:"framework"`
	DeletedAt     *time.Time         `json:"deleted_at,omitempty"`
	DeletedBy     string             `json:"deleted_by,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// Tutorial is one generated tutorial version for a concept. The body lives
// in the object store at ContentURL; only metadata is persisted here.
// At most one row per (roadmap_id, concept_id) has IsLatest set.
type Tutorial struct {
	TutorialID       string    `json:"tutorial_id"`
	RoadmapID        string    `json:"roadmap_id"`
	ConceptID        string    `json:"concept_id"`
	Title            string    `json:"title"`
	Summary          string    `json:"summary,omitempty"`
	Status           string    `json:"status"`
	ContentURL       string    `json:"content_url"`
	ContentVersion   int       `json:"content_version"`
	IsLatest         bool      `json:"is_latest"`
	EstimatedMinutes int       `json:"estimated_minutes,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Resource is a single recommended learning resource.
type Resource struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Type        string `json:"type,omitempty"` // article | video | docs | course
	Description string `json:"description,omitempty"`
}

// ResourceBundle is the single-version resource recommendation set for a
// concept. Writing a new bundle replaces any prior bundle for the same
// (roadmap_id, concept_id).
type ResourceBundle struct {
	ResourcesID string     `json:"resources_id"`
	RoadmapID   string     `json:"roadmap_id"`
	ConceptID   string     `json:"concept_id"`
	Resources   []Resource `json:"resources"`
	CreatedAt   time.Time  `json:"created_at"`
}

// QuizQuestion is one question of a generated quiz.
type QuizQuestion struct {
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	AnswerIndex int      `json:"answer_index"`
	Explanation string   `json:"explanation,omitempty"`
}

// Quiz is the single-version quiz for a concept.
type Quiz struct {
	QuizID    string         `json:"quiz_id"`
	RoadmapID string         `json:"roadmap_id"`
	ConceptID string         `json:"concept_id"`
	Questions []QuizQuestion `json:"questions"`
	CreatedAt time.Time      `json:"created_at"`
}

// ValidationRecord is the audit row for one validation round.
type ValidationRecord struct {
	ID            string                   `json:"id"`
	TaskID        string                   `json:"task_id"`
	RoadmapID     string                   `json:"roadmap_id"`
	Round         int                      `json:"round"`
	IsValid       bool                     `json:"is_valid"`
	OverallScore  float64                  `json:"overall_score"`
	CriticalCount int                      `json:"critical_count"`
	WarningCount  int                      `json:"warning_count"`
	Issues        []roadmap.Issue          `json:"issues,omitempty"`
	Dimensions    []roadmap.DimensionScore `json:"dimensions,omitempty"`
	Suggestions   []string                 `json:"suggestions,omitempty"`
	CreatedAt     time.Time                `json:"created_at"`
}

// EditRecord is the audit row for one roadmap edit, holding both framework
// snapshots and the computed change set.
type EditRecord struct {
	ID                string             `json:"id"`
	TaskID            string             `json:"task_id"`
	RoadmapID         string             `json:"roadmap_id"`
	Round             int                `json:"round"`
	Source            string             `json:"source"` // validation_failed | human_review
	OriginFramework   *roadmap.Framework `json:"origin_framework"`
	ModifiedFramework *roadmap.Framework `json:"modified_framework"`
	ChangedConceptIDs []string           `json:"changed_concept_ids"`
	Summary           string             `json:"summary,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
}

// ReviewFeedback is the audit row for one human review decision.
type ReviewFeedback struct {
	ID                string             `json:"id"`
	TaskID            string             `json:"task_id"`
	RoadmapID         string             `json:"roadmap_id"`
	ReviewRound       int                `json:"review_round"`
	Approved          bool               `json:"approved"`
	Feedback          string             `json:"feedback,omitempty"`
	FrameworkSnapshot *roadmap.Framework `json:"framework_snapshot,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
}

// EditPlanRecord is the audit row for one edit-plan analysis.
type EditPlanRecord struct {
	ID        string            `json:"id"`
	TaskID    string            `json:"task_id"`
	RoadmapID string            `json:"roadmap_id"`
	Source    string            `json:"source"`
	Plan      *roadmap.EditPlan `json:"plan"`
	CreatedAt time.Time         `json:"created_at"`
}

// Execution-log levels.
const (
	LogDebug   = "debug"
	LogInfo    = "info"
	LogWarning = "warning"
	LogError   = "error"
)

// Execution-log categories.
const (
	CategoryWorkflow = "workflow"
	CategoryAgent    = "agent"
	CategoryTool     = "tool"
	CategoryDatabase = "database"
)

// LogEntry is one structured execution-log record.
type LogEntry struct {
	ID         string         `json:"id"`
	TaskID     string         `json:"task_id"`
	Level      string         `json:"level"`
	Category   string         `json:"category"`
	Step       string         `json:"step,omitempty"`
	AgentName  string         `json:"agent_name,omitempty"`
	ConceptID  string         `json:"concept_id,omitempty"`
	RoadmapID  string         `json:"roadmap_id,omitempty"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	DurationMS int64          `json:"duration_ms,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// LogFilter narrows a log query. Zero values mean "no filter". Results are
// ordered newest-first; Offset/Limit paginate.
type LogFilter struct {
	Level    string
	Category string
	Offset   int
	Limit    int
}

// LogSummary aggregates a task's execution log.
type LogSummary struct {
	Total           int            `json:"total"`
	CountsByLevel   map[string]int `json:"counts_by_level"`
	CountsByCat     map[string]int `json:"counts_by_category"`
	TotalDurationMS int64          `json:"total_duration_ms"`
	FirstAt         time.Time      `json:"first_at"`
	LastAt          time.Time      `json:"last_at"`
}

// UserProfile holds the preference data consulted when assembling curriculum
// input.
type UserProfile struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name,omitempty"`
	Language    string    `json:"language,omitempty"`
	Background  string    `json:"background,omitempty"`
	WeeklyHours int       `json:"weekly_hours,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Note is a free-form user note attached to a roadmap concept.
type Note struct {
	NoteID    string    `json:"note_id"`
	UserID    string    `json:"user_id"`
	RoadmapID string    `json:"roadmap_id"`
	ConceptID string    `json:"concept_id,omitempty"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatMessage is one message of a task-scoped conversation.
type ChatMessage struct {
	MessageID string    `json:"message_id"`
	TaskID    string    `json:"task_id"`
	Role      string    `json:"role"` // user | assistant
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
