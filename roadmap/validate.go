package roadmap

// DimensionScore is one scored axis of a validation pass.
type DimensionScore struct {
	Dimension string  `json:"dimension"`
	Score     float64 `json:"score"`  // 0..100
	Weight    float64 `json:"weight"` // fraction of the overall score
}

// DefaultDimensions returns the fixed five-dimension weight distribution
// used when the validator agent does not supply its own. Weights sum to 1.0.
func DefaultDimensions() []DimensionScore {
	return []DimensionScore{
		{Dimension: "structure", Weight: 0.25},
		{Dimension: "progression", Weight: 0.25},
		{Dimension: "coverage", Weight: 0.20},
		{Dimension: "prerequisites", Weight: 0.15},
		{Dimension: "scoping", Weight: 0.15},
	}
}

// ValidationOutput is the result of one structure-validation round,
// combining agent findings with local structural checks.
type ValidationOutput struct {
	IsValid                bool             `json:"is_valid"`
	OverallScore           float64          `json:"overall_score"`
	Issues                 []Issue          `json:"issues"`
	DimensionScores        []DimensionScore `json:"dimension_scores"`
	ImprovementSuggestions []string         `json:"improvement_suggestions,omitempty"`
	ValidationSummary      string           `json:"validation_summary,omitempty"`
}

// CriticalCount returns the number of critical issues.
func (v *ValidationOutput) CriticalCount() int {
	c, _ := CountBySeverity(v.Issues)
	return c
}

// WarningCount returns the number of warning issues.
func (v *ValidationOutput) WarningCount() int {
	_, w := CountBySeverity(v.Issues)
	return w
}

// ComputeOverallScore applies the scoring contract:
//
//	overall = sum(dimension.Score * dimension.Weight) - 10*critical - 5*warning
//
// clamped to [0, 100].
func ComputeOverallScore(dims []DimensionScore, issues []Issue) float64 {
	var score float64
	for _, d := range dims {
		score += d.Score * d.Weight
	}
	critical, warning := CountBySeverity(issues)
	score -= 10 * float64(critical)
	score -= 5 * float64(warning)
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Finalize recomputes OverallScore and IsValid from the issue list and
// dimension scores so the scoring contract holds regardless of what the
// agent reported. IsValid is true iff no critical issue is present.
func (v *ValidationOutput) Finalize() {
	if len(v.DimensionScores) == 0 {
		v.DimensionScores = DefaultDimensions()
	}
	v.OverallScore = ComputeOverallScore(v.DimensionScores, v.Issues)
	v.IsValid = v.CriticalCount() == 0
}
