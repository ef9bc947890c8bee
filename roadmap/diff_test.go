package roadmap

import (
	"reflect"
	"testing"
)

func TestChangedConceptIDs(t *testing.T) {
	origin := buildFramework()

	t.Run("no changes", func(t *testing.T) {
		if got := ChangedConceptIDs(origin, origin.Clone()); len(got) != 0 {
			t.Errorf("expected empty change set, got %v", got)
		}
	})

	t.Run("field edit", func(t *testing.T) {
		mod := origin.Clone()
		mod.Stages[0].Modules[0].Concepts[1].Description = "now with closures"
		if got := ChangedConceptIDs(origin, mod); !reflect.DeepEqual(got, []string{"c2"}) {
			t.Errorf("ChangedConceptIDs = %v, want [c2]", got)
		}
	})

	t.Run("add and remove", func(t *testing.T) {
		mod := origin.Clone()
		mod.Stages[1].Modules[0].Concepts = []Concept{
			{ConceptID: "c4", Name: "Select"},
		}
		// c3 removed, c4 added.
		if got := ChangedConceptIDs(origin, mod); !reflect.DeepEqual(got, []string{"c3", "c4"}) {
			t.Errorf("ChangedConceptIDs = %v, want [c3 c4]", got)
		}
	})

	t.Run("moved between modules", func(t *testing.T) {
		mod := origin.Clone()
		c := mod.Stages[1].Modules[0].Concepts[0]
		mod.Stages[1].Modules[0].Concepts = nil
		mod.Stages[0].Modules[0].Concepts = append(mod.Stages[0].Modules[0].Concepts, c)
		if got := ChangedConceptIDs(origin, mod); !reflect.DeepEqual(got, []string{"c3"}) {
			t.Errorf("ChangedConceptIDs = %v, want [c3]", got)
		}
	})

	t.Run("status fields ignored", func(t *testing.T) {
		mod := origin.Clone()
		mod.Stages[0].Modules[0].Concepts[0].ContentStatus = StatusCompleted
		mod.Stages[0].Modules[0].Concepts[0].ContentRef = "https://store/t1"
		if got := ChangedConceptIDs(origin, mod); len(got) != 0 {
			t.Errorf("content-status changes must not count as edits, got %v", got)
		}
	})
}
