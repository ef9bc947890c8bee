package roadmap

// Edit-intent types produced by the edit-plan analyzer.
const (
	IntentAdd     = "add"
	IntentRemove  = "remove"
	IntentModify  = "modify"
	IntentReorder = "reorder"
	IntentSplit   = "split"
	IntentMerge   = "merge"
)

// Edit-intent priorities.
const (
	PriorityMust   = "must"
	PriorityShould = "should"
	PriorityCould  = "could"
)

// Edit sources recorded in workflow state so downstream consumers can
// distinguish validation-driven edits from human-review-driven edits.
const (
	EditSourceValidation  = "validation_failed"
	EditSourceHumanReview = "human_review"
)

// EditIntent is one typed modification extracted from free-text feedback.
type EditIntent struct {
	IntentType  string `json:"intent_type"` // add | remove | modify | reorder | split | merge
	TargetPath  string `json:"target_path"` // e.g. "stages[2].modules[0]"
	Description string `json:"description"`
	Priority    string `json:"priority"` // must | should | could
}

// EditPlan is the analyzer's decomposition of feedback (validation issues or
// a human rejection) into actionable intents, plus what must be preserved.
type EditPlan struct {
	FeedbackSummary          string       `json:"feedback_summary"`
	ScopeAnalysis            string       `json:"scope_analysis,omitempty"`
	PreservationRequirements []string     `json:"preservation_requirements,omitempty"`
	Intents                  []EditIntent `json:"intents"`
	NeedsClarification       bool         `json:"needs_clarification,omitempty"`
}

// CountByPriority tallies intents per priority bucket.
func (p *EditPlan) CountByPriority() (must, should, could int) {
	for _, in := range p.Intents {
		switch in.Priority {
		case PriorityMust:
			must++
		case PriorityShould:
			should++
		case PriorityCould:
			could++
		}
	}
	return must, should, could
}
