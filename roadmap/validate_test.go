package roadmap

import (
	"math"
	"testing"
)

func TestComputeOverallScore(t *testing.T) {
	dims := []DimensionScore{
		{Dimension: "structure", Score: 90, Weight: 0.5},
		{Dimension: "coverage", Score: 80, Weight: 0.5},
	}

	tests := []struct {
		name   string
		issues []Issue
		want   float64
	}{
		{"no issues", nil, 85},
		{"one critical", []Issue{{Severity: SeverityCritical}}, 75},
		{"one warning", []Issue{{Severity: SeverityWarning}}, 80},
		{"mixed", []Issue{{Severity: SeverityCritical}, {Severity: SeverityWarning}, {Severity: SeverityWarning}}, 65},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeOverallScore(dims, tt.issues)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ComputeOverallScore = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestComputeOverallScoreClamping(t *testing.T) {
	dims := []DimensionScore{{Dimension: "structure", Score: 20, Weight: 1.0}}
	many := make([]Issue, 5)
	for i := range many {
		many[i] = Issue{Severity: SeverityCritical}
	}
	if got := ComputeOverallScore(dims, many); got != 0 {
		t.Errorf("score should clamp at 0, got %v", got)
	}

	over := []DimensionScore{{Dimension: "structure", Score: 150, Weight: 1.0}}
	if got := ComputeOverallScore(over, nil); got != 100 {
		t.Errorf("score should clamp at 100, got %v", got)
	}
}

func TestFinalizeDerivesValidity(t *testing.T) {
	v := &ValidationOutput{
		IsValid: true, // agent claims valid; a critical issue overrides it
		Issues:  []Issue{{Severity: SeverityCritical, Category: "structure", Description: "empty stage"}},
	}
	v.Finalize()
	if v.IsValid {
		t.Error("IsValid must be false with a critical issue present")
	}
	if len(v.DimensionScores) == 0 {
		t.Error("Finalize should fill in default dimensions")
	}

	warnOnly := &ValidationOutput{Issues: []Issue{{Severity: SeverityWarning}}}
	warnOnly.Finalize()
	if !warnOnly.IsValid {
		t.Error("warnings alone must not fail validation")
	}
}

func TestDefaultDimensionWeightsSumToOne(t *testing.T) {
	var sum float64
	for _, d := range DefaultDimensions() {
		sum += d.Weight
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("default dimension weights sum to %v, want 1.0", sum)
	}
}
