package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/roadmapper-ai/roadmapper/llm"
	"github.com/roadmapper-ai/roadmapper/roadmap"
)

func TestIntentAgentParsesOutput(t *testing.T) {
	client := llm.NewScripted(llm.ScriptEntry{Content: "```json\n" + `{
		"roadmap_id": "learn-git-a1b2c3d4",
		"title": "Learn Git",
		"key_technologies": ["git"],
		"difficulty": "beginner"
	}` + "\n```"})
	set := NewLLMSet(client)

	out, err := set.Intent.AnalyzeIntent(context.Background(), roadmap.UserRequest{UserID: "u1", Goal: "learn git"})
	if err != nil {
		t.Fatalf("AnalyzeIntent: %v", err)
	}
	if out.RoadmapID != "learn-git-a1b2c3d4" {
		t.Errorf("roadmap_id = %q", out.RoadmapID)
	}
	reqs := client.Requests()
	if len(reqs) != 1 || !reqs[0].JSONOutput {
		t.Errorf("expected one JSON-mode request, got %+v", reqs)
	}
	if !strings.Contains(reqs[0].Prompt, "learn git") {
		t.Errorf("prompt does not carry the goal: %q", reqs[0].Prompt)
	}
}

func TestIntentAgentRejectsMissingRoadmapID(t *testing.T) {
	client := llm.NewScripted(llm.ScriptEntry{Content: `{"title": "Learn Git"}`})
	set := NewLLMSet(client)

	_, err := set.Intent.AnalyzeIntent(context.Background(), roadmap.UserRequest{Goal: "learn git"})
	if err == nil || !strings.Contains(err.Error(), "roadmap_id") {
		t.Fatalf("expected missing roadmap_id error, got %v", err)
	}
}

func TestAgentMalformedJSON(t *testing.T) {
	client := llm.NewScripted(llm.ScriptEntry{Content: "sorry, I cannot do that"})
	set := NewLLMSet(client)

	_, err := set.Curriculum.DesignCurriculum(context.Background(), CurriculumInput{})
	if err == nil || !strings.Contains(err.Error(), "malformed JSON") {
		t.Fatalf("expected malformed JSON error, got %v", err)
	}
}

func TestValidatorAgentEnforcesScoring(t *testing.T) {
	// The agent claims valid with a perfect score but reports one critical
	// issue. Finalize must override both.
	client := llm.NewScripted(llm.ScriptEntry{Content: `{
		"is_valid": true,
		"overall_score": 100,
		"issues": [{"severity": "critical", "category": "structure", "description": "stage empty"}],
		"dimension_scores": [
			{"dimension": "structure", "score": 80, "weight": 0.5},
			{"dimension": "coverage", "score": 60, "weight": 0.5}
		]
	}`})
	set := NewLLMSet(client)

	out, err := set.Validator.ValidateStructure(context.Background(), &roadmap.Framework{})
	if err != nil {
		t.Fatalf("ValidateStructure: %v", err)
	}
	if out.IsValid {
		t.Error("critical issue must fail validation")
	}
	if want := 80*0.5 + 60*0.5 - 10; out.OverallScore != want {
		t.Errorf("overall = %v, want %v", out.OverallScore, want)
	}
}

func TestQuizAgentValidatesQuestions(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"no questions", `{"questions": []}`, "no questions"},
		{"one option", `{"questions": [{"question": "q", "options": ["only"], "answer_index": 0}]}`, "malformed"},
		{"bad index", `{"questions": [{"question": "q", "options": ["a", "b"], "answer_index": 5}]}`, "answer_index"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := NewLLMSet(llm.NewScripted(llm.ScriptEntry{Content: tt.content}))
			_, err := set.Quiz.GenerateQuiz(context.Background(), ConceptInput{})
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestMockValidatorScript(t *testing.T) {
	v := &MockValidator{Outputs: []*roadmap.ValidationOutput{
		InvalidOutput("missing prerequisites"),
		ValidOutput(),
	}}

	first, err := v.ValidateStructure(context.Background(), &roadmap.Framework{})
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if first.IsValid {
		t.Error("first output should be invalid")
	}
	for i := 0; i < 3; i++ {
		out, err := v.ValidateStructure(context.Background(), &roadmap.Framework{})
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if !out.IsValid {
			t.Errorf("call %d should repeat the valid output", i)
		}
	}
	if v.CallCount() != 4 {
		t.Errorf("calls = %d, want 4", v.CallCount())
	}
}
