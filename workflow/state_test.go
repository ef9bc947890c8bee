package workflow

import (
	"testing"

	"github.com/roadmapper-ai/roadmapper/meta"
)

func TestApplyScalars(t *testing.T) {
	st := NewState("t1", testRequest())

	st = Apply(st, Delta{RoadmapID: str("go-basics-a1b2c3d4"), CurrentStep: str(NodeIntentAnalysis)})
	if st.RoadmapID != "go-basics-a1b2c3d4" || st.CurrentStep != NodeIntentAnalysis {
		t.Fatalf("scalar writes not applied: %+v", st)
	}

	// Last write wins.
	st = Apply(st, Delta{CurrentStep: str(NodeCurriculumDesign)})
	if st.CurrentStep != NodeCurriculumDesign {
		t.Errorf("current step = %q", st.CurrentStep)
	}
	if st.RoadmapID != "go-basics-a1b2c3d4" {
		t.Errorf("unset scalar must be preserved, got %q", st.RoadmapID)
	}

	// Setting a bool to false is distinguishable from not setting it.
	st = Apply(st, Delta{HumanApproved: flag(true)})
	st = Apply(st, Delta{HumanApproved: flag(false)})
	if st.HumanApproved {
		t.Error("human_approved should be false after explicit write")
	}
}

func TestApplyMergesRefs(t *testing.T) {
	st := NewState("t1", testRequest())

	st = Apply(st, Delta{TutorialRefs: map[string]string{"c1": "tut-1"}})
	before := st
	st = Apply(st, Delta{TutorialRefs: map[string]string{"c2": "tut-2", "c1": "tut-1b"}})

	if len(st.TutorialRefs) != 2 {
		t.Fatalf("refs = %v", st.TutorialRefs)
	}
	if st.TutorialRefs["c1"] != "tut-1b" {
		t.Errorf("later write must overwrite: %v", st.TutorialRefs)
	}
	// Prior state is never mutated.
	if before.TutorialRefs["c1"] != "tut-1" || len(before.TutorialRefs) != 1 {
		t.Errorf("prior state mutated: %v", before.TutorialRefs)
	}
}

func TestApplyAppends(t *testing.T) {
	st := NewState("t1", testRequest())

	st = Apply(st, Delta{ExecutionHistory: []string{NodeIntentAnalysis}})
	before := st
	st = Apply(st, Delta{
		ExecutionHistory: []string{NodeCurriculumDesign},
		FailedConcepts:   []meta.ConceptFailure{{ConceptID: "c1", Reason: "boom"}},
	})

	if len(st.ExecutionHistory) != 2 || st.ExecutionHistory[1] != NodeCurriculumDesign {
		t.Errorf("history = %v", st.ExecutionHistory)
	}
	if len(st.FailedConcepts) != 1 {
		t.Errorf("failed = %v", st.FailedConcepts)
	}
	if len(before.ExecutionHistory) != 1 {
		t.Errorf("prior history mutated: %v", before.ExecutionHistory)
	}
}

func TestApplyEmptyDelta(t *testing.T) {
	st := NewState("t1", testRequest())
	st = Apply(st, Delta{TutorialRefs: map[string]string{"c1": "tut-1"}})

	same := Apply(st, Delta{})
	if same.TutorialRefs["c1"] != "tut-1" || same.TaskID != "t1" {
		t.Errorf("empty delta changed state: %+v", same)
	}
}
