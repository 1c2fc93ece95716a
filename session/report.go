package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pithecene-io/assay/metrics"
	"github.com/pithecene-io/assay/transcript"
	"github.com/pithecene-io/assay/types"
)

// Process exit codes for the validate command.
const (
	ExitPassed    = 0
	ExitFailed    = 1
	ExitError     = 2
	ExitCancelled = 3
)

// ExitCodeFor maps a terminal snapshot to a process exit code. A verdict
// of "playbook failed validation" is distinct from the validation itself
// erroring out.
func ExitCodeFor(snap Snapshot) int {
	switch snap.State {
	case StateCompleted:
		if snap.Result != nil && snap.Result.Passed {
			return ExitPassed
		}
		return ExitFailed
	case StateCancelled:
		return ExitCancelled
	default:
		return ExitError
	}
}

// ValidationReport is the structured JSON report written by --report.
// Playbook texts are deliberately excluded; the report is the machine
// readable outcome, not the artifact.
type ValidationReport struct {
	ValidationID string `json:"validation_id"`
	Profile      string `json:"profile"`
	State        State  `json:"state"`
	ExitCode     int    `json:"exit_code"`
	DurationMs   int64  `json:"duration_ms"`
	StepCount    int    `json:"step_count"`

	Passed       *bool                    `json:"passed,omitempty"`
	Summary      *types.ValidationSummary `json:"summary,omitempty"`
	Issues       []types.LintIssue        `json:"issues,omitempty"`
	Truncated    bool                     `json:"truncated,omitempty"`
	ErrorMessage string                   `json:"error_message,omitempty"`

	Transcript *ReportTranscript `json:"transcript"`
	Metrics    *metrics.Snapshot `json:"metrics"`
}

// ReportTranscript holds recorder stats in the report.
type ReportTranscript struct {
	Records   int64 `json:"records"`
	Persisted int64 `json:"persisted"`
	Dropped   int64 `json:"dropped"`
	Flushes   int64 `json:"flushes"`
	Errors    int64 `json:"errors"`
}

// BuildValidationReport composes a report from a terminal snapshot, the
// metrics snapshot, and the recorder stats for this invocation.
func BuildValidationReport(snap Snapshot, metricsSnap metrics.Snapshot, recorderStats transcript.Stats, exitCode int) *ValidationReport {
	report := &ValidationReport{
		ValidationID: snap.ValidationID,
		Profile:      string(snap.Profile),
		State:        snap.State,
		ExitCode:     exitCode,
		StepCount:    len(snap.Steps),
		ErrorMessage: snap.ErrorMessage,
		Transcript: &ReportTranscript{
			Records:   recorderStats.TotalRecords,
			Persisted: recorderStats.RecordsPersisted,
			Dropped:   recorderStats.RecordsDropped,
			Flushes:   recorderStats.FlushCount,
			Errors:    recorderStats.Errors,
		},
		Metrics: &metricsSnap,
	}

	if !snap.FinishedAt.IsZero() && !snap.StartedAt.IsZero() {
		report.DurationMs = snap.FinishedAt.Sub(snap.StartedAt).Milliseconds()
	}

	if result := snap.Result; result != nil {
		passed := result.Passed
		report.Passed = &passed
		summary := result.Summary
		report.Summary = &summary
		report.Issues = result.Issues
		if truncated, ok := result.DebugInfo["truncated_stream"].(bool); ok {
			report.Truncated = truncated
		}
	}

	return report
}

// WriteValidationReport writes the report as JSON to path. Path "-" writes
// to stderr; stdout stays reserved for the playbook output.
func WriteValidationReport(report *ValidationReport, path string) error {
	if path == "" {
		return errors.New("report path must not be empty")
	}
	if path == "-" {
		return writeValidationReportTo(report, os.Stderr)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return nil
}

// writeValidationReportTo writes report JSON to any writer (for testing).
func writeValidationReportTo(report *ValidationReport, w io.Writer) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
