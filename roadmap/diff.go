package roadmap

import "sort"

// ChangedConceptIDs computes the set of concept IDs that differ between an
// origin framework and its edited successor. A concept counts as changed
// when it was added, removed, moved to a different module, or had any of its
// descriptive fields altered. Content-status fields are ignored: they belong
// to the fan-out stage, not to editing.
//
// The result is sorted for deterministic persistence and comparison.
func ChangedConceptIDs(origin, modified *Framework) []string {
	type placed struct {
		c        Concept
		moduleID string
	}
	index := func(f *Framework) map[string]placed {
		m := make(map[string]placed)
		for _, s := range f.Stages {
			for _, mod := range s.Modules {
				for _, c := range mod.Concepts {
					m[c.ConceptID] = placed{c: c, moduleID: mod.ModuleID}
				}
			}
		}
		return m
	}

	before := index(origin)
	after := index(modified)

	changed := make(map[string]bool)
	for id, b := range before {
		a, ok := after[id]
		if !ok {
			changed[id] = true // removed
			continue
		}
		if a.moduleID != b.moduleID || !conceptEqual(b.c, a.c) {
			changed[id] = true
		}
	}
	for id := range after {
		if _, ok := before[id]; !ok {
			changed[id] = true // added
		}
	}

	out := make([]string, 0, len(changed))
	for id := range changed {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// conceptEqual compares the descriptive fields of two concepts.
func conceptEqual(a, b Concept) bool {
	if a.Name != b.Name || a.Description != b.Description ||
		a.EstimatedHours != b.EstimatedHours || a.Difficulty != b.Difficulty {
		return false
	}
	if !stringSliceEqual(a.Prerequisites, b.Prerequisites) {
		return false
	}
	return stringSliceEqual(a.Keywords, b.Keywords)
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
