// Package agent defines the typed contracts of the workflow's external
// collaborators: the eight LLM-backed agents (intent analysis, curriculum
// design, structure validation, edit-plan analysis, roadmap editing, and the
// three content generators), plus the object-store, web-search and
// image-generation tools the fan-out stage reaches through.
//
// The engine imposes only that inputs and outputs are plain data and that
// failure is signalled by error. LLM-backed implementations live in this
// package (see llm.go); tests use the func adapters and mocks in mock.go.
package agent

import (
	"context"

	"github.com/roadmapper-ai/roadmapper/meta"
	"github.com/roadmapper-ai/roadmapper/roadmap"
)

// IntentAgent interprets the user's free-text goal.
type IntentAgent interface {
	AnalyzeIntent(ctx context.Context, req roadmap.UserRequest) (*roadmap.IntentAnalysis, error)
}

// CurriculumInput is everything the curriculum architect sees.
type CurriculumInput struct {
	Request roadmap.UserRequest     `json:"request"`
	Intent  *roadmap.IntentAnalysis `json:"intent"`

	// Profile is the stored user preference profile, nil when the user has
	// none.
	Profile *meta.UserProfile `json:"profile,omitempty"`
}

// CurriculumAgent designs the three-level framework tree.
type CurriculumAgent interface {
	DesignCurriculum(ctx context.Context, in CurriculumInput) (*roadmap.Framework, error)
}

// ValidatorAgent scores a framework's structure. Local structural checks run
// before the agent and take precedence over its findings.
type ValidatorAgent interface {
	ValidateStructure(ctx context.Context, fw *roadmap.Framework) (*roadmap.ValidationOutput, error)
}

// EditPlanInput carries feedback (validation issues rendered as text, or a
// human rejection) plus the framework it applies to.
type EditPlanInput struct {
	Feedback  string             `json:"feedback"`
	Framework *roadmap.Framework `json:"framework"`
	Source    string             `json:"source"` // validation_failed | human_review
}

// EditPlanAgent decomposes free-text feedback into typed edit intents.
type EditPlanAgent interface {
	AnalyzeFeedback(ctx context.Context, in EditPlanInput) (*roadmap.EditPlan, error)
}

// EditInput carries the plan to apply, the framework to apply it to, and a
// context string describing the edit round and per-priority intent counts.
type EditInput struct {
	Plan      *roadmap.EditPlan  `json:"plan"`
	Framework *roadmap.Framework `json:"framework"`
	Context   string             `json:"context,omitempty"`
}

// EditorAgent applies an edit plan, returning the modified framework.
type EditorAgent interface {
	EditRoadmap(ctx context.Context, in EditInput) (*roadmap.Framework, error)
}

// ConceptInput identifies one concept for content generation.
type ConceptInput struct {
	RoadmapID string          `json:"roadmap_id"`
	Concept   roadmap.Concept `json:"concept"`
	Language  string          `json:"language,omitempty"`
}

// TutorialOutput is one generated tutorial. Body is markdown destined for
// the object store; it never enters workflow state.
type TutorialOutput struct {
	Title            string `json:"title"`
	Summary          string `json:"summary,omitempty"`
	Body             string `json:"body"`
	EstimatedMinutes int    `json:"estimated_minutes,omitempty"`
}

// TutorialAgent writes a tutorial for one concept.
type TutorialAgent interface {
	GenerateTutorial(ctx context.Context, in ConceptInput) (*TutorialOutput, error)
}

// ResourceOutput is the recommended resource set for one concept.
type ResourceOutput struct {
	Resources []meta.Resource `json:"resources"`
}

// ResourceAgent recommends learning resources for one concept.
type ResourceAgent interface {
	RecommendResources(ctx context.Context, in ConceptInput) (*ResourceOutput, error)
}

// QuizOutput is the generated quiz for one concept.
type QuizOutput struct {
	Questions []meta.QuizQuestion `json:"questions"`
}

// QuizAgent writes a quiz for one concept.
type QuizAgent interface {
	GenerateQuiz(ctx context.Context, in ConceptInput) (*QuizOutput, error)
}

// Set bundles every agent the workflow needs.
type Set struct {
	Intent     IntentAgent
	Curriculum CurriculumAgent
	Validator  ValidatorAgent
	EditPlan   EditPlanAgent
	Editor     EditorAgent
	Tutorial   TutorialAgent
	Resources  ResourceAgent
	Quiz       QuizAgent
}
