// Package bus delivers workflow progress events to in-process subscribers.
//
// Each workflow task is a topic. The executor publishes lifecycle and
// per-concept events; API callers subscribe to stream progress to clients.
// Delivery is best-effort: a slow subscriber loses its oldest buffered events
// rather than blocking the workflow, and publishing never returns an error to
// the executor.
package bus

import "time"

// Event types published over a task's lifetime. The three terminal types
// close the topic.
const (
	EventWorkflowStarted     = "workflow_started"
	EventStepStarted         = "step_started"
	EventStepCompleted       = "step_completed"
	EventValidationRound     = "validation_round"
	EventEditApplied         = "edit_applied"
	EventHumanReviewRequired = "human_review_required"
	EventWorkflowResumed     = "workflow_resumed"
	EventConceptStarted      = "concept_started"
	EventConceptCompleted    = "concept_completed"
	EventConceptFailed       = "concept_failed"
	EventConceptAllComplete  = "concept_all_content_complete"
	EventBatchStarted        = "batch_started"
	EventBatchCompleted      = "batch_completed"
	EventTaskRecovering      = "task_recovering"
	EventRetryStarted        = "retry_started"
	EventRetryCompleted      = "retry_completed"
	EventWorkflowCompleted   = "workflow_completed"
	EventWorkflowFailed      = "workflow_failed"
	EventWorkflowTimeout     = "workflow_timeout"
)

// IsTerminal reports whether an event type ends its topic.
func IsTerminal(eventType string) bool {
	switch eventType {
	case EventWorkflowCompleted, EventWorkflowFailed, EventWorkflowTimeout:
		return true
	}
	return false
}

// Event is one progress notification for a workflow task.
type Event struct {
	TaskID    string         `json:"task_id"`
	Type      string         `json:"type"`
	Step      string         `json:"step,omitempty"`
	RoadmapID string         `json:"roadmap_id,omitempty"`
	ConceptID string         `json:"concept_id,omitempty"`
	Message   string         `json:"message,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
