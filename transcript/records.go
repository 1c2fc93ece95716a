package transcript

import (
	"time"

	"github.com/pithecene-io/assay/metrics"
	"github.com/pithecene-io/assay/types"
)

// toStepRecordMap converts a ValidationStep to a map for Lode storage.
// Lode HiveLayout requires records as map[string]any. Partition keys
// (source, profile, day, validation_id, record_kind) are included in
// every record.
func toStepRecordMap(step *types.ValidationStep, cfg Config) map[string]any {
	m := map[string]any{
		"record_kind":   RecordKindStep,
		"step":          step.Index,
		"agent_action":  string(step.Action),
		"summary":       step.Summary,
		"received_at":   step.ReceivedAt.UTC().Format(time.RFC3339Nano),
		"source":        cfg.Source,
		"profile":       cfg.Profile,
		"day":           cfg.Day,
		"validation_id": cfg.ValidationID,
	}
	if step.Code != "" {
		m["code"] = step.Code
	}
	if step.Message != "" {
		m["message"] = step.Message
	}
	return m
}

// toResultRecordMap converts a ValidationResult to a map for Lode storage.
// Steps are stored as individual step records, so the result record carries
// only the step count.
func toResultRecordMap(result *types.ValidationResult, cfg Config) map[string]any {
	m := map[string]any{
		"record_kind":     RecordKindResult,
		"passed":          result.Passed,
		"fixes_applied":   result.Summary.FixesApplied,
		"lint_iterations": result.Summary.LintIterations,
		"final_status":    result.Summary.FinalStatus,
		"step_count":      len(result.Steps),
		"source":          cfg.Source,
		"profile":         cfg.Profile,
		"day":             cfg.Day,
		"validation_id":   cfg.ValidationID,
	}
	if result.FinalPlaybook != "" {
		m["final_playbook"] = result.FinalPlaybook
	}
	if result.OriginalPlaybook != "" {
		m["original_playbook"] = result.OriginalPlaybook
	}
	if result.ErrorMessage != "" {
		m["error_message"] = result.ErrorMessage
	}
	if len(result.Issues) > 0 {
		issues := make([]any, 0, len(result.Issues))
		for _, issue := range result.Issues {
			issues = append(issues, map[string]any{
				"rule":        issue.Rule,
				"description": issue.Description,
				"line":        issue.Line,
				"severity":    issue.Severity,
			})
		}
		m["issues"] = issues
	}
	if truncated, ok := result.DebugInfo["truncated_stream"].(bool); ok && truncated {
		m["truncated_stream"] = true
	}
	return m
}

// toMetricsRecordMap converts a metrics snapshot to a map for Lode storage.
// Counter keys follow the _total convention so the record reads like an
// exported metrics scrape.
func toMetricsRecordMap(snap metrics.Snapshot, cfg Config, ts time.Time) map[string]any {
	m := map[string]any{
		"record_kind": RecordKindMetrics,
		"ts":          ts.UTC().Format(time.RFC3339Nano),

		"validations_started_total":   snap.ValidationsStarted,
		"validations_completed_total": snap.ValidationsCompleted,
		"validations_failed_total":    snap.ValidationsFailed,
		"validations_cancelled_total": snap.ValidationsCancelled,
		"validations_timed_out_total": snap.ValidationsTimedOut,

		"lines_read_total":     snap.LinesRead,
		"frames_parsed_total":  snap.FramesParsed,
		"lines_skipped_total":  snap.LinesSkipped,
		"error_frames_total":   snap.ErrorFrames,
		"steps_observed_total": snap.StepsObserved,

		"records_buffered_total":  snap.RecordsBuffered,
		"records_persisted_total": snap.RecordsPersisted,
		"records_dropped_total":   snap.RecordsDropped,

		"transcript_write_success_total": snap.TranscriptWriteSuccess,
		"transcript_write_failure_total": snap.TranscriptWriteFailure,

		"backend":         snap.Backend,
		"storage_backend": snap.StorageBackend,
		"source":          cfg.Source,
		"profile":         cfg.Profile,
		"day":             cfg.Day,
		"validation_id":   cfg.ValidationID,
	}
	if len(snap.FramesByKind) > 0 {
		m["frames_by_kind"] = countMapToAny(snap.FramesByKind)
	}
	if len(snap.DroppedByKind) > 0 {
		m["dropped_by_kind"] = countMapToAny(snap.DroppedByKind)
	}
	return m
}

// countMapToAny copies a counter map into the map[string]any shape the
// JSONL codec round-trips cleanly.
func countMapToAny(counts map[string]int64) map[string]any {
	out := make(map[string]any, len(counts))
	for k, v := range counts {
		out[k] = v
	}
	return out
}

// stepFromRecord reconstructs a ValidationStep from a stored record map.
// JSONL decoding yields float64 for all numbers; timestamps round-trip
// through RFC 3339 strings.
func stepFromRecord(m map[string]any) types.ValidationStep {
	step := types.ValidationStep{
		Index:   toInt(m["step"]),
		Action:  types.AgentAction(toString(m["agent_action"])),
		Summary: toString(m["summary"]),
		Code:    toString(m["code"]),
		Message: toString(m["message"]),
	}
	if ts, err := time.Parse(time.RFC3339Nano, toString(m["received_at"])); err == nil {
		step.ReceivedAt = ts
	}
	return step
}

// resultFromRecord reconstructs a ValidationResult from a stored record map.
// Steps are not embedded in the result record; callers attach them from the
// surrounding step records.
func resultFromRecord(m map[string]any) *types.ValidationResult {
	result := &types.ValidationResult{
		Passed:           toBool(m["passed"]),
		FinalPlaybook:    toString(m["final_playbook"]),
		OriginalPlaybook: toString(m["original_playbook"]),
		ErrorMessage:     toString(m["error_message"]),
		Summary: types.ValidationSummary{
			FixesApplied:   toInt(m["fixes_applied"]),
			LintIterations: toInt(m["lint_iterations"]),
			FinalStatus:    toString(m["final_status"]),
		},
	}
	if issues, ok := m["issues"].([]any); ok {
		for _, item := range issues {
			im, ok := item.(map[string]any)
			if !ok {
				continue
			}
			result.Issues = append(result.Issues, types.LintIssue{
				Rule:        toString(im["rule"]),
				Description: toString(im["description"]),
				Line:        toInt(im["line"]),
				Severity:    toString(im["severity"]),
			})
		}
	}
	if toBool(m["truncated_stream"]) {
		result.DebugInfo = map[string]any{"truncated_stream": true}
	}
	return result
}

// toString converts a value to string, returning empty string for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// toInt converts a stored number to int. JSONL decoding produces float64;
// records written in-process may still hold int.
func toInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	default:
		return 0
	}
}

// toBool converts a value to bool, returning false for nil/non-bool.
func toBool(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return false
}
