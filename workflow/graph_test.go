package workflow

import (
	"testing"

	"github.com/roadmapper-ai/roadmapper/agent"
	"github.com/roadmapper-ai/roadmapper/roadmap"
)

func buildTestGraph(t *testing.T, opts Options) *graphDef {
	t.Helper()
	fw := testFramework("c1")
	env := newTestEnv(t, agent.NewMockSet(fw), opts)
	return env.engine.graph
}

func invalidState(modCount int) State {
	st := NewState("t1", testRequest())
	st.Validation = &roadmap.ValidationOutput{IsValid: false}
	st.ModificationCount = modCount
	return st
}

func validState() State {
	st := NewState("t1", testRequest())
	st.Validation = &roadmap.ValidationOutput{IsValid: true}
	return st
}

func TestGraphFullChain(t *testing.T) {
	g := buildTestGraph(t, Options{MaxValidationRetries: 3})

	if g.start != NodeIntentAnalysis {
		t.Errorf("start = %q", g.start)
	}
	if got := g.route(NodeIntentAnalysis, State{}); got != NodeCurriculumDesign {
		t.Errorf("after intent = %q", got)
	}
	if got := g.route(NodeCurriculumDesign, State{}); got != NodeStructureValidation {
		t.Errorf("after curriculum = %q", got)
	}
	if got := g.route(NodeValidationEditPlan, State{}); got != NodeRoadmapEdit {
		t.Errorf("after edit plan = %q", got)
	}
	if got := g.route(NodeRoadmapEdit, State{}); got != NodeStructureValidation {
		t.Errorf("after edit = %q", got)
	}
	if got := g.route(NodeContentFanOut, State{}); got != nodeEnd {
		t.Errorf("after fan-out = %q", got)
	}
}

func TestGraphValidationRouting(t *testing.T) {
	g := buildTestGraph(t, Options{MaxValidationRetries: 3})

	tests := []struct {
		name string
		st   State
		want string
	}{
		{"invalid with retries left loops", invalidState(0), NodeValidationEditPlan},
		{"invalid at last retry loops", invalidState(2), NodeValidationEditPlan},
		{"invalid with retries exhausted proceeds", invalidState(3), NodeHumanReview},
		{"valid proceeds", validState(), NodeHumanReview},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := g.route(NodeStructureValidation, tc.st); got != tc.want {
				t.Errorf("route = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestGraphHumanReviewRouting(t *testing.T) {
	g := buildTestGraph(t, Options{MaxValidationRetries: 3})

	approved := State{HumanApproved: true}
	if got := g.route(NodeHumanReview, approved); got != NodeContentFanOut {
		t.Errorf("approved = %q", got)
	}
	rejected := State{HumanApproved: false}
	if got := g.route(NodeHumanReview, rejected); got != NodeEditPlanAnalysis {
		t.Errorf("rejected = %q", got)
	}
	if got := g.route(NodeEditPlanAnalysis, State{}); got != NodeRoadmapEdit {
		t.Errorf("after review edit plan = %q", got)
	}
}

func TestGraphRejectionWithoutValidationRedesigns(t *testing.T) {
	g := buildTestGraph(t, Options{SkipValidation: true})

	if got := g.route(NodeHumanReview, State{HumanApproved: false}); got != NodeCurriculumDesign {
		t.Errorf("rejected without validation = %q, want curriculum_design", got)
	}
	if _, ok := g.runners[NodeEditPlanAnalysis]; ok {
		t.Error("edit plan node must not exist without validation")
	}
}

func TestGraphSkipOptions(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		// expected successor of curriculum_design
		afterCurriculum string
		absent          []string
	}{
		{
			"all stages on",
			Options{},
			NodeStructureValidation,
			nil,
		},
		{
			"validation off",
			Options{SkipValidation: true},
			NodeHumanReview,
			[]string{NodeStructureValidation, NodeValidationEditPlan, NodeRoadmapEdit},
		},
		{
			"validation and review off",
			Options{SkipValidation: true, SkipHumanReview: true},
			NodeContentFanOut,
			[]string{NodeStructureValidation, NodeHumanReview},
		},
		{
			"framework only",
			Options{SkipValidation: true, SkipHumanReview: true, SkipContentGeneration: true},
			nodeEnd,
			[]string{NodeStructureValidation, NodeHumanReview, NodeContentFanOut},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g := buildTestGraph(t, tc.opts)
			if got := g.route(NodeCurriculumDesign, State{}); got != tc.afterCurriculum {
				t.Errorf("after curriculum = %q, want %q", got, tc.afterCurriculum)
			}
			for _, node := range tc.absent {
				if _, ok := g.runners[node]; ok {
					t.Errorf("node %s should not be built", node)
				}
			}
		})
	}
}

func TestGraphApprovalWithoutContentEnds(t *testing.T) {
	g := buildTestGraph(t, Options{SkipContentGeneration: true})
	if got := g.route(NodeHumanReview, State{HumanApproved: true}); got != nodeEnd {
		t.Errorf("approved without content = %q, want end", got)
	}
}
