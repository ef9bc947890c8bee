package roadmap

import "testing"

// buildFramework returns a small well-formed two-stage framework used across
// the structural check tests.
func buildFramework() *Framework {
	return &Framework{
		RoadmapID: "go-basics-a1b2c3d4",
		Title:     "Go Basics",
		Stages: []Stage{
			{
				StageID: "s1", Name: "Foundations",
				Modules: []Module{
					{
						ModuleID: "m1", Name: "Syntax",
						Concepts: []Concept{
							{ConceptID: "c1", Name: "Variables"},
							{ConceptID: "c2", Name: "Functions", Prerequisites: []string{"c1"}},
						},
					},
				},
			},
			{
				StageID: "s2", Name: "Concurrency",
				Modules: []Module{
					{
						ModuleID: "m2", Name: "Goroutines",
						Concepts: []Concept{
							{ConceptID: "c3", Name: "Channels", Prerequisites: []string{"c2"}},
						},
					},
				},
			},
		},
	}
}

func TestCheckStructureValid(t *testing.T) {
	issues := CheckStructure(buildFramework())
	if len(issues) != 0 {
		t.Fatalf("expected no issues for valid framework, got %v", issues)
	}
}

func TestCheckStructureFindings(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(f *Framework)
		category string
	}{
		{
			name:     "unresolved prerequisite",
			mutate:   func(f *Framework) { f.Stages[0].Modules[0].Concepts[0].Prerequisites = []string{"ghost"} },
			category: "prerequisites",
		},
		{
			name: "prerequisite cycle",
			mutate: func(f *Framework) {
				f.Stages[0].Modules[0].Concepts[0].Prerequisites = []string{"c3"}
			},
			category: "prerequisites",
		},
		{
			name:     "empty stage",
			mutate:   func(f *Framework) { f.Stages[1].Modules = nil },
			category: "structure",
		},
		{
			name:     "empty module",
			mutate:   func(f *Framework) { f.Stages[1].Modules[0].Concepts = nil },
			category: "structure",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := buildFramework()
			tt.mutate(f)
			issues := CheckStructure(f)
			if len(issues) == 0 {
				t.Fatal("expected at least one issue")
			}
			found := false
			for _, is := range issues {
				if is.Severity != SeverityCritical {
					t.Errorf("structural findings must be critical, got %q", is.Severity)
				}
				if is.Category == tt.category {
					found = true
				}
			}
			if !found {
				t.Errorf("expected an issue in category %q, got %v", tt.category, issues)
			}
		})
	}
}

func TestFindPrerequisiteCycleSelfLoop(t *testing.T) {
	f := buildFramework()
	f.Stages[0].Modules[0].Concepts[0].Prerequisites = []string{"c1"}
	cycle := findPrerequisiteCycle(f)
	if len(cycle) != 1 || cycle[0] != "c1" {
		t.Fatalf("expected self-loop cycle [c1], got %v", cycle)
	}
}

func TestMergeIssuesLocalWins(t *testing.T) {
	local := []Issue{{Severity: SeverityCritical, Category: "structure", Description: "stage empty"}}
	agent := []Issue{
		{Severity: SeverityWarning, Category: "structure", Description: "stage empty"}, // duplicate, dropped
		{Severity: SeverityWarning, Category: "coverage", Description: "missing testing module"},
	}
	merged := MergeIssues(local, agent)
	if len(merged) != 2 {
		t.Fatalf("expected 2 merged issues, got %d: %v", len(merged), merged)
	}
	if merged[0].Severity != SeverityCritical {
		t.Errorf("local finding must take precedence, got %q", merged[0].Severity)
	}
}

func TestFrameworkTraversal(t *testing.T) {
	f := buildFramework()
	if got := f.ConceptCount(); got != 3 {
		t.Errorf("ConceptCount = %d, want 3", got)
	}
	ids := f.ConceptIDs()
	want := []string{"c1", "c2", "c3"}
	for i, id := range want {
		if ids[i] != id {
			t.Errorf("ConceptIDs[%d] = %q, want %q", i, ids[i], id)
		}
	}
	if f.FindConcept("c2") == nil {
		t.Error("FindConcept(c2) returned nil")
	}
	if f.FindConcept("nope") != nil {
		t.Error("FindConcept(nope) should return nil")
	}
}

func TestCloneIsDeep(t *testing.T) {
	f := buildFramework()
	cp := f.Clone()
	cp.Stages[0].Modules[0].Concepts[0].Name = "changed"
	cp.Stages[0].Modules[0].Concepts[1].Prerequisites[0] = "changed"
	if f.Stages[0].Modules[0].Concepts[0].Name == "changed" {
		t.Error("Clone shares concept memory with original")
	}
	if f.Stages[0].Modules[0].Concepts[1].Prerequisites[0] == "changed" {
		t.Error("Clone shares prerequisite slice with original")
	}
}

func TestMarkContentStatuses(t *testing.T) {
	f := buildFramework()
	f.MarkContentStatuses([]string{"c1", "c3"}, StatusFailed)
	if c := f.FindConcept("c1"); c.ContentStatus != StatusFailed || c.QuizStatus != StatusFailed || c.ResourcesStatus != StatusFailed {
		t.Errorf("c1 statuses not all failed: %+v", c)
	}
	if c := f.FindConcept("c2"); c.ContentStatus != "" {
		t.Errorf("c2 should be untouched, got %q", c.ContentStatus)
	}
}

func TestSplitID(t *testing.T) {
	tests := []struct {
		id, base, suffix string
	}{
		{"go-basics-a1b2c3d4", "go-basics", "a1b2c3d4"},
		{"plain", "plain", ""},
		{"a-b", "a", "b"},
	}
	for _, tt := range tests {
		base, suffix := SplitID(tt.id)
		if base != tt.base || suffix != tt.suffix {
			t.Errorf("SplitID(%q) = (%q, %q), want (%q, %q)", tt.id, base, suffix, tt.base, tt.suffix)
		}
	}
}
