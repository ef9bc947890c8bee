package roadmap

// IntentAnalysis is the structured interpretation of a user's free-text
// learning goal, produced by the intent-analysis agent. The RoadmapID field
// is a candidate only; the workflow reconciles it against the store for
// uniqueness before it becomes authoritative.
type IntentAnalysis struct {
	RoadmapID          string   `json:"roadmap_id"`
	Title              string   `json:"title,omitempty"`
	KeyTechnologies    []string `json:"key_technologies,omitempty"`
	Difficulty         string   `json:"difficulty,omitempty"`
	TimeConstraint     string   `json:"time_constraint,omitempty"`
	SkillGaps          []string `json:"skill_gaps,omitempty"`
	LanguagePreference string   `json:"language_preference,omitempty"`
	RecommendedFocus   []string `json:"recommended_focus,omitempty"`
	Summary            string   `json:"summary,omitempty"`
}

// UserRequest is the opaque payload that starts a workflow. The engine
// treats it as data; only agents interpret it.
type UserRequest struct {
	UserID string         `json:"user_id"`
	Goal   string         `json:"goal"`
	Level  string         `json:"level,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}
