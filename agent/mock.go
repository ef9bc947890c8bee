package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/roadmapper-ai/roadmapper/meta"
	"github.com/roadmapper-ai/roadmapper/roadmap"
)

// Func adapters let tests supply agents as closures.

// IntentFunc adapts a function to IntentAgent.
type IntentFunc func(ctx context.Context, req roadmap.UserRequest) (*roadmap.IntentAnalysis, error)

func (f IntentFunc) AnalyzeIntent(ctx context.Context, req roadmap.UserRequest) (*roadmap.IntentAnalysis, error) {
	return f(ctx, req)
}

// CurriculumFunc adapts a function to CurriculumAgent.
type CurriculumFunc func(ctx context.Context, in CurriculumInput) (*roadmap.Framework, error)

func (f CurriculumFunc) DesignCurriculum(ctx context.Context, in CurriculumInput) (*roadmap.Framework, error) {
	return f(ctx, in)
}

// ValidatorFunc adapts a function to ValidatorAgent.
type ValidatorFunc func(ctx context.Context, fw *roadmap.Framework) (*roadmap.ValidationOutput, error)

func (f ValidatorFunc) ValidateStructure(ctx context.Context, fw *roadmap.Framework) (*roadmap.ValidationOutput, error) {
	return f(ctx, fw)
}

// EditPlanFunc adapts a function to EditPlanAgent.
type EditPlanFunc func(ctx context.Context, in EditPlanInput) (*roadmap.EditPlan, error)

func (f EditPlanFunc) AnalyzeFeedback(ctx context.Context, in EditPlanInput) (*roadmap.EditPlan, error) {
	return f(ctx, in)
}

// EditorFunc adapts a function to EditorAgent.
type EditorFunc func(ctx context.Context, in EditInput) (*roadmap.Framework, error)

func (f EditorFunc) EditRoadmap(ctx context.Context, in EditInput) (*roadmap.Framework, error) {
	return f(ctx, in)
}

// TutorialFunc adapts a function to TutorialAgent.
type TutorialFunc func(ctx context.Context, in ConceptInput) (*TutorialOutput, error)

func (f TutorialFunc) GenerateTutorial(ctx context.Context, in ConceptInput) (*TutorialOutput, error) {
	return f(ctx, in)
}

// ResourceFunc adapts a function to ResourceAgent.
type ResourceFunc func(ctx context.Context, in ConceptInput) (*ResourceOutput, error)

func (f ResourceFunc) RecommendResources(ctx context.Context, in ConceptInput) (*ResourceOutput, error) {
	return f(ctx, in)
}

// QuizFunc adapts a function to QuizAgent.
type QuizFunc func(ctx context.Context, in ConceptInput) (*QuizOutput, error)

func (f QuizFunc) GenerateQuiz(ctx context.Context, in ConceptInput) (*QuizOutput, error) {
	return f(ctx, in)
}

// MockValidator returns a scripted sequence of validation outputs.
//
// Each call to ValidateStructure returns the next output in order; when the
// script is consumed the last output repeats. If Err is set it is returned
// instead. Calls are counted for assertions. Thread-safe.
type MockValidator struct {
	// Outputs is the sequence of results to return, in order.
	Outputs []*roadmap.ValidationOutput

	// Err, if set, is returned instead of an output.
	Err error

	mu    sync.Mutex
	index int
	calls int
}

// ValidateStructure implements ValidatorAgent.
func (m *MockValidator) ValidateStructure(ctx context.Context, fw *roadmap.Framework) (*roadmap.ValidationOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Outputs) == 0 {
		return &roadmap.ValidationOutput{IsValid: true, OverallScore: 100}, nil
	}
	idx := m.index
	if idx >= len(m.Outputs) {
		idx = len(m.Outputs) - 1
	} else {
		m.index++
	}
	out := *m.Outputs[idx]
	return &out, nil
}

// CallCount returns the number of ValidateStructure invocations.
func (m *MockValidator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// InvalidOutput builds a failing validation result with one critical issue,
// scored per the scoring contract.
func InvalidOutput(description string) *roadmap.ValidationOutput {
	out := &roadmap.ValidationOutput{
		Issues: []roadmap.Issue{{
			Severity:    roadmap.SeverityCritical,
			Category:    "structure",
			Description: description,
		}},
		DimensionScores: passingDimensions(),
	}
	out.Finalize()
	return out
}

// ValidOutput builds a passing validation result.
func ValidOutput() *roadmap.ValidationOutput {
	out := &roadmap.ValidationOutput{DimensionScores: passingDimensions()}
	out.Finalize()
	return out
}

func passingDimensions() []roadmap.DimensionScore {
	dims := roadmap.DefaultDimensions()
	for i := range dims {
		dims[i].Score = 90
	}
	return dims
}

// NewMockSet builds a happy-path agent set around the given framework:
// intent analysis names the framework's roadmap ID, curriculum design
// returns the framework, validation passes, edits return the input
// framework unchanged, and content agents succeed for every concept.
// Tests override individual members to script failures.
func NewMockSet(fw *roadmap.Framework) Set {
	return Set{
		Intent: IntentFunc(func(ctx context.Context, req roadmap.UserRequest) (*roadmap.IntentAnalysis, error) {
			return &roadmap.IntentAnalysis{
				RoadmapID:  fw.RoadmapID,
				Title:      fw.Title,
				Difficulty: req.Level,
				Summary:    "mock analysis of " + req.Goal,
			}, nil
		}),
		Curriculum: CurriculumFunc(func(ctx context.Context, in CurriculumInput) (*roadmap.Framework, error) {
			return fw.Clone(), nil
		}),
		Validator: &MockValidator{},
		EditPlan: EditPlanFunc(func(ctx context.Context, in EditPlanInput) (*roadmap.EditPlan, error) {
			return &roadmap.EditPlan{
				FeedbackSummary: in.Feedback,
				Intents: []roadmap.EditIntent{{
					IntentType:  roadmap.IntentModify,
					TargetPath:  "stages[0].modules[0]",
					Description: "apply feedback",
					Priority:    roadmap.PriorityMust,
				}},
			}, nil
		}),
		Editor: EditorFunc(func(ctx context.Context, in EditInput) (*roadmap.Framework, error) {
			return in.Framework.Clone(), nil
		}),
		Tutorial: TutorialFunc(func(ctx context.Context, in ConceptInput) (*TutorialOutput, error) {
			return &TutorialOutput{
				Title:            "Tutorial: " + in.Concept.Name,
				Summary:          "covers " + in.Concept.Name,
				Body:             fmt.Sprintf("# %s\n\nGenerated tutorial body.\n", in.Concept.Name),
				EstimatedMinutes: 30,
			}, nil
		}),
		Resources: ResourceFunc(func(ctx context.Context, in ConceptInput) (*ResourceOutput, error) {
			return &ResourceOutput{Resources: []meta.Resource{{
				Title: in.Concept.Name + " docs",
				URL:   "https://example.com/" + in.Concept.ConceptID,
				Type:  "docs",
			}}}, nil
		}),
		Quiz: QuizFunc(func(ctx context.Context, in ConceptInput) (*QuizOutput, error) {
			return &QuizOutput{Questions: []meta.QuizQuestion{{
				Question:    "What does " + in.Concept.Name + " cover?",
				Options:     []string{"A", "B", "C"},
				AnswerIndex: 0,
			}}}, nil
		}),
	}
}
