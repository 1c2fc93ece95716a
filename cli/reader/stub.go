package reader

import (
	"context"
	"time"
)

// StubReader returns shape-correct stub data for development and testing.
// Commands behave identically against it and the Lode-backed reader, so
// CLI output paths can be exercised without a transcript store on disk.
type StubReader struct{}

// NewStubReader creates a new stub reader.
func NewStubReader() *StubReader {
	return &StubReader{}
}

// InspectValidation returns stub validation details.
func (r *StubReader) InspectValidation(_ context.Context, validationID string) (*InspectValidationResponse, error) {
	now := time.Now()
	passed := true
	return &InspectValidationResponse{
		ValidationID:   validationID,
		Profile:        "basic",
		Day:            "2026-08-20",
		Passed:         &passed,
		FinalStatus:    "passed",
		LintIterations: 2,
		FixesApplied:   1,
		Steps: []InspectStep{
			{Index: 1, Action: "lint", Summary: "Initial lint found 1 issue", ReceivedAt: now.Add(-3 * time.Second)},
			{Index: 2, Action: "llm_fix", Summary: "Applied fix for fqcn-builtins", ReceivedAt: now.Add(-2 * time.Second)},
			{Index: 3, Action: "lint", Summary: "Re-lint: No issues found", ReceivedAt: now.Add(-time.Second)},
		},
	}, nil
}

// ListValidations returns stub validations with filtering applied.
func (r *StubReader) ListValidations(_ context.Context, opts ListValidationsOptions) ([]ListValidationItem, error) {
	items := []ListValidationItem{
		{ValidationID: "01JGD0Z8MNT5V4E6GXK8BW2RQP", Profile: "basic", Day: "2026-08-21", HasResult: true},
		{ValidationID: "01JGD0Z7AC4J9XQ2KD5RV8TNWE", Profile: "production", Day: "2026-08-20", HasResult: true},
		{ValidationID: "01JGD0Z5T1H6M3BSFY0PW9KXCZ", Profile: "basic", Day: "2026-08-20", HasResult: false},
		{ValidationID: "01JGD0Z4E8N2QVJ7QM1GD6SRYB", Profile: "safety", Day: "2026-08-19", HasResult: true},
	}
	return applyListOptions(items, opts), nil
}

// StatsValidations returns stub validation statistics.
func (r *StubReader) StatsValidations(_ context.Context) (*ValidationStats, error) {
	return &ValidationStats{
		Total:    4,
		Passed:   2,
		Failed:   1,
		NoResult: 1,
		ByProfile: map[string]int{
			"basic":      2,
			"production": 1,
			"safety":     1,
		},
	}, nil
}

// Verify StubReader implements Reader.
var _ Reader = (*StubReader)(nil)
