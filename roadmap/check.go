package roadmap

import "fmt"

// Issue severities reported by structural checks and the validator agent.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// Issue describes a single structural or pedagogical problem found in a
// framework. Critical issues fail validation; warnings do not.
type Issue struct {
	Severity         string   `json:"severity"`
	Category         string   `json:"category"`
	Location         string   `json:"location,omitempty"`
	Description      string   `json:"description"`
	AffectedConcepts []string `json:"affected_concepts,omitempty"`
}

// CheckStructure runs the local structural invariant checks on a framework:
//
//   - every prerequisite reference resolves to a concept in the same roadmap
//   - the prerequisite graph is acyclic
//   - no stage is empty of modules
//   - no module is empty of concepts
//
// All findings are critical. These checks run before the validator agent is
// consulted and take precedence over agent findings (see the structure
// validation runner).
func CheckStructure(f *Framework) []Issue {
	var issues []Issue

	known := make(map[string]bool)
	for _, c := range f.Concepts() {
		known[c.ConceptID] = true
	}

	for si, s := range f.Stages {
		if len(s.Modules) == 0 {
			issues = append(issues, Issue{
				Severity:    SeverityCritical,
				Category:    "structure",
				Location:    fmt.Sprintf("stages[%d]", si),
				Description: fmt.Sprintf("stage %q has no modules", s.Name),
			})
		}
		for mi, m := range s.Modules {
			if len(m.Concepts) == 0 {
				issues = append(issues, Issue{
					Severity:    SeverityCritical,
					Category:    "structure",
					Location:    fmt.Sprintf("stages[%d].modules[%d]", si, mi),
					Description: fmt.Sprintf("module %q has no concepts", m.Name),
				})
			}
		}
	}

	for _, c := range f.Concepts() {
		for _, pre := range c.Prerequisites {
			if !known[pre] {
				issues = append(issues, Issue{
					Severity:         SeverityCritical,
					Category:         "prerequisites",
					Description:      fmt.Sprintf("concept %q references unknown prerequisite %q", c.ConceptID, pre),
					AffectedConcepts: []string{c.ConceptID},
				})
			}
		}
	}

	if cycle := findPrerequisiteCycle(f); len(cycle) > 0 {
		issues = append(issues, Issue{
			Severity:         SeverityCritical,
			Category:         "prerequisites",
			Description:      fmt.Sprintf("prerequisite cycle detected: %v", cycle),
			AffectedConcepts: cycle,
		})
	}

	return issues
}

// findPrerequisiteCycle runs an iterative-coloring DFS over the prerequisite
// graph and returns the first cycle found, or nil. References to unknown
// concepts are skipped here; the resolution check reports those separately.
func findPrerequisiteCycle(f *Framework) []string {
	prereqs := make(map[string][]string)
	var order []string
	for _, c := range f.Concepts() {
		prereqs[c.ConceptID] = c.Prerequisites
		order = append(order, c.ConceptID)
	}

	const (
		white = 0 // unvisited
		gray  = 1 // on the current path
		black = 2 // fully explored
	)
	color := make(map[string]int, len(order))
	var path []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		path = append(path, id)
		for _, pre := range prereqs[id] {
			if _, ok := prereqs[pre]; !ok {
				continue
			}
			switch color[pre] {
			case gray:
				// Slice the path from the first occurrence of pre.
				for i, p := range path {
					if p == pre {
						cycle = append([]string(nil), path[i:]...)
						break
					}
				}
				return true
			case white:
				if visit(pre) {
					return true
				}
			}
		}
		path = path[:len(path)-1]
		color[id] = black
		return false
	}

	for _, id := range order {
		if color[id] == white {
			if visit(id) {
				return cycle
			}
		}
	}
	return nil
}

// CountBySeverity tallies critical and warning issues.
func CountBySeverity(issues []Issue) (critical, warning int) {
	for _, is := range issues {
		switch is.Severity {
		case SeverityCritical:
			critical++
		case SeverityWarning:
			warning++
		}
	}
	return critical, warning
}

// MergeIssues combines locally detected issues with agent-reported issues.
// Local findings come first and win on conflict: an agent issue whose
// category and description duplicate a local finding is dropped.
func MergeIssues(local, agent []Issue) []Issue {
	seen := make(map[string]bool, len(local))
	key := func(is Issue) string { return is.Category + "\x00" + is.Description }
	out := make([]Issue, 0, len(local)+len(agent))
	for _, is := range local {
		seen[key(is)] = true
		out = append(out, is)
	}
	for _, is := range agent {
		if seen[key(is)] {
			continue
		}
		out = append(out, is)
	}
	return out
}
