package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roadmapper-ai/roadmapper/llm"
	"github.com/roadmapper-ai/roadmapper/roadmap"
)

// NewLLMSet builds a full agent set on one chat client. Wrap the client
// with llm.WithRetry before passing it in when transient-failure retries
// are wanted; the agents themselves do not retry.
func NewLLMSet(client llm.Client) Set {
	return Set{
		Intent:     &llmIntent{client: client},
		Curriculum: &llmCurriculum{client: client},
		Validator:  &llmValidator{client: client},
		EditPlan:   &llmEditPlan{client: client},
		Editor:     &llmEditor{client: client},
		Tutorial:   &llmTutorial{client: client},
		Resources:  &llmResources{client: client},
		Quiz:       &llmQuiz{client: client},
	}
}

// completeJSON runs one JSON-mode completion and unmarshals the cleaned
// output into out.
func completeJSON(ctx context.Context, client llm.Client, name, system, prompt string, out any) error {
	resp, err := client.Complete(ctx, llm.Request{
		System:     system,
		Prompt:     prompt,
		JSONOutput: true,
	})
	if err != nil {
		return fmt.Errorf("%s agent call failed: %w", name, err)
	}
	if err := json.Unmarshal([]byte(llm.CleanJSON(resp.Content)), out); err != nil {
		return fmt.Errorf("%s agent returned malformed JSON: %w", name, err)
	}
	return nil
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

const intentSystem = `You are an intent analyst for a learning-roadmap
service. Given a user's learning goal, return a JSON object with fields:
roadmap_id (kebab-case slug ending in a dash and 8 random lowercase
alphanumerics, e.g. "learn-git-a1b2c3d4"), title, key_technologies,
difficulty, time_constraint, skill_gaps, language_preference,
recommended_focus, summary.`

type llmIntent struct {
	client llm.Client
}

func (a *llmIntent) AnalyzeIntent(ctx context.Context, req roadmap.UserRequest) (*roadmap.IntentAnalysis, error) {
	var out roadmap.IntentAnalysis
	prompt := "Analyze this learning request:\n" + mustJSON(req)
	if err := completeJSON(ctx, a.client, "intent", intentSystem, prompt, &out); err != nil {
		return nil, err
	}
	if out.RoadmapID == "" {
		return nil, errors.New("intent agent output missing roadmap_id")
	}
	return &out, nil
}

const curriculumSystem = `You are a curriculum architect. Design a learning
roadmap as a JSON object with fields: roadmap_id, title, description, and
stages. Each stage has stage_id, name, description and modules; each module
has module_id, name, description and concepts; each concept has concept_id
(unique across the roadmap), name, description, estimated_hours,
prerequisites (concept_ids that appear in this roadmap), difficulty and
keywords. Order stages and concepts from foundational to advanced.`

type llmCurriculum struct {
	client llm.Client
}

func (a *llmCurriculum) DesignCurriculum(ctx context.Context, in CurriculumInput) (*roadmap.Framework, error) {
	var out roadmap.Framework
	prompt := "Design a roadmap for:\n" + mustJSON(in)
	if err := completeJSON(ctx, a.client, "curriculum", curriculumSystem, prompt, &out); err != nil {
		return nil, err
	}
	if len(out.Stages) == 0 {
		return nil, errors.New("curriculum agent returned a framework with no stages")
	}
	if out.Title == "" {
		return nil, errors.New("curriculum agent returned a framework with no title")
	}
	return &out, nil
}

const validatorSystem = `You are a curriculum reviewer. Assess the given
roadmap framework and return a JSON object with fields: is_valid,
overall_score, issues (each with severity "critical" or "warning",
category, location, description, affected_concepts), dimension_scores
(dimension, score 0-100, weight), improvement_suggestions,
validation_summary. Flag missing prerequisites, poor progression, scope
problems and coverage gaps.`

type llmValidator struct {
	client llm.Client
}

func (a *llmValidator) ValidateStructure(ctx context.Context, fw *roadmap.Framework) (*roadmap.ValidationOutput, error) {
	var out roadmap.ValidationOutput
	prompt := "Review this roadmap framework:\n" + mustJSON(fw)
	if err := completeJSON(ctx, a.client, "validator", validatorSystem, prompt, &out); err != nil {
		return nil, err
	}
	// The scoring contract is enforced locally; the agent's own
	// overall_score and is_valid are advisory.
	out.Finalize()
	return &out, nil
}

const editPlanSystem = `You analyze roadmap feedback. Given feedback text
and the current framework, return a JSON object with fields:
feedback_summary, scope_analysis, preservation_requirements, intents (each
with intent_type one of add|remove|modify|reorder|split|merge, target_path
like "stages[2].modules[0]", description, priority one of
must|should|could), needs_clarification.`

type llmEditPlan struct {
	client llm.Client
}

func (a *llmEditPlan) AnalyzeFeedback(ctx context.Context, in EditPlanInput) (*roadmap.EditPlan, error) {
	var out roadmap.EditPlan
	prompt := "Decompose this feedback into edit intents:\n" + mustJSON(in)
	if err := completeJSON(ctx, a.client, "edit-plan", editPlanSystem, prompt, &out); err != nil {
		return nil, err
	}
	if len(out.Intents) == 0 && !out.NeedsClarification {
		return nil, errors.New("edit-plan agent returned no intents")
	}
	return &out, nil
}

const editorSystem = `You are a roadmap editor. Apply the given edit plan
to the framework and return the complete modified framework as JSON with
the same schema (roadmap_id, title, description, stages). Preserve
everything the plan's preservation_requirements name. Keep concept_ids
stable for concepts that survive the edit.`

type llmEditor struct {
	client llm.Client
}

func (a *llmEditor) EditRoadmap(ctx context.Context, in EditInput) (*roadmap.Framework, error) {
	var out roadmap.Framework
	prompt := "Apply this edit plan:\n" + mustJSON(in)
	if err := completeJSON(ctx, a.client, "editor", editorSystem, prompt, &out); err != nil {
		return nil, err
	}
	if len(out.Stages) == 0 {
		return nil, errors.New("editor agent returned a framework with no stages")
	}
	return &out, nil
}

const tutorialSystem = `You are a technical tutorial writer. Write a
self-contained markdown tutorial for the given concept and return a JSON
object with fields: title, summary, body (full markdown),
estimated_minutes.`

type llmTutorial struct {
	client llm.Client
}

func (a *llmTutorial) GenerateTutorial(ctx context.Context, in ConceptInput) (*TutorialOutput, error) {
	var out TutorialOutput
	prompt := "Write a tutorial for:\n" + mustJSON(in)
	if err := completeJSON(ctx, a.client, "tutorial", tutorialSystem, prompt, &out); err != nil {
		return nil, err
	}
	if out.Title == "" || out.Body == "" {
		return nil, errors.New("tutorial agent output missing title or body")
	}
	return &out, nil
}

const resourcesSystem = `You are a learning-resource curator. Recommend
high-quality external resources for the given concept and return a JSON
object with field resources: a list of {title, url, type
(article|video|docs|course), description}.`

type llmResources struct {
	client llm.Client
}

func (a *llmResources) RecommendResources(ctx context.Context, in ConceptInput) (*ResourceOutput, error) {
	var out ResourceOutput
	prompt := "Recommend resources for:\n" + mustJSON(in)
	if err := completeJSON(ctx, a.client, "resources", resourcesSystem, prompt, &out); err != nil {
		return nil, err
	}
	if len(out.Resources) == 0 {
		return nil, errors.New("resources agent returned no resources")
	}
	for i, r := range out.Resources {
		if r.Title == "" || r.URL == "" {
			return nil, fmt.Errorf("resources agent output entry %d missing title or url", i)
		}
	}
	return &out, nil
}

const quizSystem = `You are a quiz author. Write a multiple-choice quiz
for the given concept and return a JSON object with field questions: a
list of {question, options (2-6 strings), answer_index (0-based),
explanation}.`

type llmQuiz struct {
	client llm.Client
}

func (a *llmQuiz) GenerateQuiz(ctx context.Context, in ConceptInput) (*QuizOutput, error) {
	var out QuizOutput
	prompt := "Write a quiz for:\n" + mustJSON(in)
	if err := completeJSON(ctx, a.client, "quiz", quizSystem, prompt, &out); err != nil {
		return nil, err
	}
	if len(out.Questions) == 0 {
		return nil, errors.New("quiz agent returned no questions")
	}
	for i, q := range out.Questions {
		if q.Question == "" || len(q.Options) < 2 {
			return nil, fmt.Errorf("quiz agent output question %d is malformed", i)
		}
		if q.AnswerIndex < 0 || q.AnswerIndex >= len(q.Options) {
			return nil, fmt.Errorf("quiz agent output question %d has out-of-range answer_index", i)
		}
	}
	return &out, nil
}

var (
	_ IntentAgent     = (*llmIntent)(nil)
	_ CurriculumAgent = (*llmCurriculum)(nil)
	_ ValidatorAgent  = (*llmValidator)(nil)
	_ EditPlanAgent   = (*llmEditPlan)(nil)
	_ EditorAgent     = (*llmEditor)(nil)
	_ TutorialAgent   = (*llmTutorial)(nil)
	_ ResourceAgent   = (*llmResources)(nil)
	_ QuizAgent       = (*llmQuiz)(nil)
)
