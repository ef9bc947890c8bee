// Package workflow is the durable multi-agent engine that turns a user's
// learning goal into a roadmap with per-concept content. It advances a
// fixed graph of nodes (intent analysis, curriculum design, the
// validation/edit loop, human review, content fan-out), checkpointing state
// after every node so a run survives restarts and can pause indefinitely
// for human review.
package workflow

import (
	"github.com/roadmapper-ai/roadmapper/meta"
	"github.com/roadmapper-ai/roadmapper/roadmap"
)

// State is the full channel state of one workflow run. It is persisted as
// the checkpoint payload after every node and must stay JSON-serializable.
//
// Channels fall into three reducer classes (see Delta): scalars are
// last-write-wins, the *Refs maps merge by union, and FailedConcepts /
// ExecutionHistory append.
type State struct {
	UserRequest roadmap.UserRequest `json:"user_request"`
	TaskID      string              `json:"task_id"`
	RoadmapID   string              `json:"roadmap_id,omitempty"`

	Intent     *roadmap.IntentAnalysis   `json:"intent_analysis,omitempty"`
	Framework  *roadmap.Framework        `json:"roadmap_framework,omitempty"`
	Validation *roadmap.ValidationOutput `json:"validation_result,omitempty"`
	EditPlan   *roadmap.EditPlan         `json:"edit_plan,omitempty"`

	UserFeedback      string `json:"user_feedback,omitempty"`
	EditSource        string `json:"edit_source,omitempty"`
	ValidationRound   int    `json:"validation_round,omitempty"`
	ModificationCount int    `json:"modification_count,omitempty"`
	CurrentStep       string `json:"current_step,omitempty"`
	HumanApproved     bool   `json:"human_approved,omitempty"`
	ReviewFeedbackID  string `json:"review_feedback_id,omitempty"`
	EditPlanRecordID  string `json:"edit_plan_record_id,omitempty"`

	TutorialRefs map[string]string `json:"tutorial_refs,omitempty"`
	ResourceRefs map[string]string `json:"resource_refs,omitempty"`
	QuizRefs     map[string]string `json:"quiz_refs,omitempty"`

	FailedConcepts   []meta.ConceptFailure `json:"failed_concepts,omitempty"`
	ExecutionHistory []string              `json:"execution_history,omitempty"`
}

// NewState builds the initial state for a run.
func NewState(taskID string, req roadmap.UserRequest) State {
	return State{TaskID: taskID, UserRequest: req}
}

// Delta is the set of channel writes one node returns. Scalar fields are
// pointers so "unset" and "set to zero value" are distinguishable; map
// fields carry only new entries; slice fields carry only new items. Nodes
// must never rely on observing prior map keys.
type Delta struct {
	RoadmapID  *string                   `json:"roadmap_id,omitempty"`
	Intent     *roadmap.IntentAnalysis   `json:"intent_analysis,omitempty"`
	Framework  *roadmap.Framework        `json:"roadmap_framework,omitempty"`
	Validation *roadmap.ValidationOutput `json:"validation_result,omitempty"`
	EditPlan   *roadmap.EditPlan         `json:"edit_plan,omitempty"`

	UserFeedback      *string `json:"user_feedback,omitempty"`
	EditSource        *string `json:"edit_source,omitempty"`
	ValidationRound   *int    `json:"validation_round,omitempty"`
	ModificationCount *int    `json:"modification_count,omitempty"`
	CurrentStep       *string `json:"current_step,omitempty"`
	HumanApproved     *bool   `json:"human_approved,omitempty"`
	ReviewFeedbackID  *string `json:"review_feedback_id,omitempty"`
	EditPlanRecordID  *string `json:"edit_plan_record_id,omitempty"`

	TutorialRefs map[string]string `json:"tutorial_refs,omitempty"`
	ResourceRefs map[string]string `json:"resource_refs,omitempty"`
	QuizRefs     map[string]string `json:"quiz_refs,omitempty"`

	FailedConcepts   []meta.ConceptFailure `json:"failed_concepts,omitempty"`
	ExecutionHistory []string              `json:"execution_history,omitempty"`
}

// Apply folds a delta into prev and returns the resulting state. prev is
// never mutated: maps and slices are copied before merging so earlier
// checkpoints stay intact.
func Apply(prev State, d Delta) State {
	next := prev

	if d.RoadmapID != nil {
		next.RoadmapID = *d.RoadmapID
	}
	if d.Intent != nil {
		next.Intent = d.Intent
	}
	if d.Framework != nil {
		next.Framework = d.Framework
	}
	if d.Validation != nil {
		next.Validation = d.Validation
	}
	if d.EditPlan != nil {
		next.EditPlan = d.EditPlan
	}
	if d.UserFeedback != nil {
		next.UserFeedback = *d.UserFeedback
	}
	if d.EditSource != nil {
		next.EditSource = *d.EditSource
	}
	if d.ValidationRound != nil {
		next.ValidationRound = *d.ValidationRound
	}
	if d.ModificationCount != nil {
		next.ModificationCount = *d.ModificationCount
	}
	if d.CurrentStep != nil {
		next.CurrentStep = *d.CurrentStep
	}
	if d.HumanApproved != nil {
		next.HumanApproved = *d.HumanApproved
	}
	if d.ReviewFeedbackID != nil {
		next.ReviewFeedbackID = *d.ReviewFeedbackID
	}
	if d.EditPlanRecordID != nil {
		next.EditPlanRecordID = *d.EditPlanRecordID
	}

	next.TutorialRefs = mergeRefs(prev.TutorialRefs, d.TutorialRefs)
	next.ResourceRefs = mergeRefs(prev.ResourceRefs, d.ResourceRefs)
	next.QuizRefs = mergeRefs(prev.QuizRefs, d.QuizRefs)

	if len(d.FailedConcepts) > 0 {
		next.FailedConcepts = append(append([]meta.ConceptFailure(nil), prev.FailedConcepts...), d.FailedConcepts...)
	}
	if len(d.ExecutionHistory) > 0 {
		next.ExecutionHistory = append(append([]string(nil), prev.ExecutionHistory...), d.ExecutionHistory...)
	}
	return next
}

// mergeRefs unions prior and delta entries into a fresh map; delta entries
// win on key collision. Both inputs are left untouched.
func mergeRefs(prior, delta map[string]string) map[string]string {
	if len(delta) == 0 {
		return prior
	}
	out := make(map[string]string, len(prior)+len(delta))
	for k, v := range prior {
		out[k] = v
	}
	for k, v := range delta {
		out[k] = v
	}
	return out
}

// Helpers for building scalar delta fields.

func str(s string) *string { return &s }
func num(i int) *int       { return &i }
func flag(b bool) *bool    { return &b }
