// Package roadmap defines the learning-roadmap domain model: the three-level
// framework tree (stages -> modules -> concepts), the structural checks that
// guard it, and the typed agent outputs (intent analysis, validation output,
// edit plans) that flow through the workflow.
package roadmap

import "strings"

// Content status values embedded per concept. Each of the three content
// types (tutorial, resources, quiz) tracks its own status field.
const (
	StatusPending    = "pending"
	StatusGenerating = "generating"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Framework is the complete structural plan of a roadmap: an ordered list of
// stages, each holding ordered modules, each holding ordered leaf concepts.
//
// The framework is stored as an opaque JSON column in RoadmapMetadata.
// Mutations must go through copy-and-replace (see Clone) so the persistence
// layer can be told the column changed; in-place mutation of a loaded
// framework is forbidden.
type Framework struct {
	RoadmapID   string  `json:"roadmap_id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Stages      []Stage `json:"stages"`
}

// Stage is the top level of the framework tree.
type Stage struct {
	StageID     string   `json:"stage_id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Modules     []Module `json:"modules"`
}

// Module is the middle level of the framework tree.
type Module struct {
	ModuleID    string    `json:"module_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Concepts    []Concept `json:"concepts"`
}

// Concept is a leaf of the framework tree and the unit of content
// generation. Each concept carries three independent status triples, one per
// content type, updated by the fan-out stage.
type Concept struct {
	ConceptID      string   `json:"concept_id"`
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	EstimatedHours float64  `json:"estimated_hours,omitempty"`
	Prerequisites  []string `json:"prerequisites,omitempty"`
	Difficulty     string   `json:"difficulty,omitempty"`
	Keywords       []string `json:"keywords,omitempty"`

	// Tutorial status triple.
	ContentStatus  string `json:"content_status,omitempty"`
	ContentRef     string `json:"content_ref,omitempty"`
	ContentSummary string `json:"content_summary,omitempty"`

	// Resource-bundle status triple.
	ResourcesStatus string `json:"resources_status,omitempty"`
	ResourcesID     string `json:"resources_id,omitempty"`
	ResourcesCount  int    `json:"resources_count,omitempty"`

	// Quiz status triple.
	QuizStatus         string `json:"quiz_status,omitempty"`
	QuizID             string `json:"quiz_id,omitempty"`
	QuizQuestionsCount int    `json:"quiz_questions_count,omitempty"`
}

// Concepts returns every leaf concept in tree order (stage, then module,
// then concept position).
func (f *Framework) Concepts() []*Concept {
	var out []*Concept
	for si := range f.Stages {
		for mi := range f.Stages[si].Modules {
			for ci := range f.Stages[si].Modules[mi].Concepts {
				out = append(out, &f.Stages[si].Modules[mi].Concepts[ci])
			}
		}
	}
	return out
}

// ConceptIDs returns the IDs of every concept in tree order.
func (f *Framework) ConceptIDs() []string {
	concepts := f.Concepts()
	ids := make([]string, 0, len(concepts))
	for _, c := range concepts {
		ids = append(ids, c.ConceptID)
	}
	return ids
}

// FindConcept returns the concept with the given ID, or nil if absent.
func (f *Framework) FindConcept(conceptID string) *Concept {
	for _, c := range f.Concepts() {
		if c.ConceptID == conceptID {
			return c
		}
	}
	return nil
}

// ConceptCount returns the number of leaf concepts.
func (f *Framework) ConceptCount() int {
	n := 0
	for _, s := range f.Stages {
		for _, m := range s.Modules {
			n += len(m.Concepts)
		}
	}
	return n
}

// TotalEstimatedHours sums the estimated hours across all concepts.
func (f *Framework) TotalEstimatedHours() float64 {
	var h float64
	for _, c := range f.Concepts() {
		h += c.EstimatedHours
	}
	return h
}

// Summary holds headline statistics derived from a framework, used for the
// human-review notification payload.
type Summary struct {
	Title          string  `json:"title"`
	StageCount     int     `json:"stage_count"`
	ModuleCount    int     `json:"module_count"`
	ConceptCount   int     `json:"concept_count"`
	EstimatedHours float64 `json:"estimated_hours"`
}

// Summarize derives headline statistics from the framework.
func (f *Framework) Summarize() Summary {
	modules := 0
	for _, s := range f.Stages {
		modules += len(s.Modules)
	}
	return Summary{
		Title:          f.Title,
		StageCount:     len(f.Stages),
		ModuleCount:    modules,
		ConceptCount:   f.ConceptCount(),
		EstimatedHours: f.TotalEstimatedHours(),
	}
}

// Clone returns a deep copy of the framework. Save helpers clone before
// mutating so loaded entities are never modified in place.
func (f *Framework) Clone() *Framework {
	out := &Framework{
		RoadmapID:   f.RoadmapID,
		Title:       f.Title,
		Description: f.Description,
		Stages:      make([]Stage, len(f.Stages)),
	}
	for si, s := range f.Stages {
		ns := Stage{StageID: s.StageID, Name: s.Name, Description: s.Description, Modules: make([]Module, len(s.Modules))}
		for mi, m := range s.Modules {
			nm := Module{ModuleID: m.ModuleID, Name: m.Name, Description: m.Description, Concepts: make([]Concept, len(m.Concepts))}
			for ci, c := range m.Concepts {
				nc := c
				nc.Prerequisites = append([]string(nil), c.Prerequisites...)
				nc.Keywords = append([]string(nil), c.Keywords...)
				nm.Concepts[ci] = nc
			}
			ns.Modules[mi] = nm
		}
		out.Stages[si] = ns
	}
	return out
}

// MarkContentStatuses sets the tutorial/resources/quiz status fields of the
// given concepts to status. Unknown IDs are ignored.
func (f *Framework) MarkContentStatuses(conceptIDs []string, status string) {
	want := make(map[string]bool, len(conceptIDs))
	for _, id := range conceptIDs {
		want[id] = true
	}
	for _, c := range f.Concepts() {
		if want[c.ConceptID] {
			c.ContentStatus = status
			c.ResourcesStatus = status
			c.QuizStatus = status
		}
	}
}

// SplitID parses a roadmap ID of the form "base-XXXXXXXX" into its base and
// trailing suffix segment. When the ID has no dash the whole ID is the base
// and the suffix is empty.
func SplitID(roadmapID string) (base, suffix string) {
	i := strings.LastIndex(roadmapID, "-")
	if i < 0 {
		return roadmapID, ""
	}
	return roadmapID[:i], roadmapID[i+1:]
}
