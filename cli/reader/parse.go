package reader

import (
	"errors"

	"github.com/pithecene-io/assay/transcript"
)

// ParseMetricsRecord converts a Lode record (map[string]any) to a MetricsSnapshot.
// Handles both int64 (direct writes) and float64 (JSON round-trips) for numeric fields.
func ParseMetricsRecord(record map[string]any) (*MetricsSnapshot, error) {
	if record == nil {
		return nil, errors.New("nil record")
	}

	snap := &MetricsSnapshot{
		Ts: toString(record["ts"]),

		// Validation lifecycle
		ValidationsStarted:   toInt64(record["validations_started_total"]),
		ValidationsCompleted: toInt64(record["validations_completed_total"]),
		ValidationsFailed:    toInt64(record["validations_failed_total"]),
		ValidationsCancelled: toInt64(record["validations_cancelled_total"]),
		ValidationsTimedOut:  toInt64(record["validations_timed_out_total"]),

		// Stream processing
		LinesRead:     toInt64(record["lines_read_total"]),
		FramesParsed:  toInt64(record["frames_parsed_total"]),
		LinesSkipped:  toInt64(record["lines_skipped_total"]),
		ErrorFrames:   toInt64(record["error_frames_total"]),
		StepsObserved: toInt64(record["steps_observed_total"]),

		// Transcript
		RecordsBuffered:  toInt64(record["records_buffered_total"]),
		RecordsPersisted: toInt64(record["records_persisted_total"]),
		RecordsDropped:   toInt64(record["records_dropped_total"]),

		// Storage
		TranscriptWriteSuccess: toInt64(record["transcript_write_success_total"]),
		TranscriptWriteFailure: toInt64(record["transcript_write_failure_total"]),

		// Dimensions
		Backend:        toString(record["backend"]),
		StorageBackend: toString(record["storage_backend"]),
		Profile:        toString(record["profile"]),
		ValidationID:   toString(record["validation_id"]),
	}

	// Parse count maps if present
	if fbk, ok := record["frames_by_kind"]; ok && fbk != nil {
		snap.FramesByKind = parseCountMap(fbk)
	}
	if dbk, ok := record["dropped_by_kind"]; ok && dbk != nil {
		snap.DroppedByKind = parseCountMap(dbk)
	}

	// Validate contract-required fields per CONTRACT_CLI.md.
	// The write path always populates these; missing values indicate
	// data corruption or a malformed record.
	if snap.Ts == "" {
		return nil, errors.New("metrics record missing required field: ts")
	}
	if snap.ValidationID == "" {
		return nil, errors.New("metrics record missing required field: validation_id")
	}
	if snap.Profile == "" {
		return nil, errors.New("metrics record missing required field: profile")
	}
	if snap.StorageBackend == "" {
		return nil, errors.New("metrics record missing required field: storage_backend")
	}

	return snap, nil
}

// inspectFromView flattens a reconstructed transcript into the inspect
// response shape. Step accounting is always derived from the stored steps
// so the numbers match the step list even when the result record disagrees
// or is missing.
func inspectFromView(view *transcript.TranscriptView) (*InspectValidationResponse, error) {
	resp := &InspectValidationResponse{
		ValidationID: view.ValidationID,
		Profile:      view.Profile,
		Day:          view.Day,
		Steps:        make([]InspectStep, 0, len(view.Steps)),
	}

	for _, step := range view.Steps {
		resp.Steps = append(resp.Steps, InspectStep{
			Index:      step.Index,
			Action:     string(step.Action),
			Summary:    step.Summary,
			Message:    step.Message,
			ReceivedAt: step.ReceivedAt,
		})
		if step.Action.IsFix() {
			resp.FixesApplied++
		} else {
			resp.LintIterations++
		}
	}

	if view.Result != nil {
		passed := view.Result.Passed
		resp.Passed = &passed
		resp.FinalStatus = view.Result.Summary.FinalStatus
		resp.ErrorMessage = view.Result.ErrorMessage
	}

	if view.Metrics != nil {
		snap, err := ParseMetricsRecord(view.Metrics)
		if err != nil {
			return nil, err
		}
		resp.Metrics = snap
	}

	return resp, nil
}

// applyListOptions filters and truncates list results.
func applyListOptions(items []ListValidationItem, opts ListValidationsOptions) []ListValidationItem {
	if opts.Profile != "" || opts.Day != "" {
		filtered := make([]ListValidationItem, 0, len(items))
		for _, item := range items {
			if opts.Profile != "" && item.Profile != opts.Profile {
				continue
			}
			if opts.Day != "" && item.Day != opts.Day {
				continue
			}
			filtered = append(filtered, item)
		}
		items = filtered
	}

	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}

	return items
}

// toInt64 converts a value to int64, handling float64 from JSON and int64 from direct writes.
func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	case int:
		return int64(n)
	default:
		return 0
	}
}

// toString converts a value to string, returning empty string for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// parseCountMap converts a per-kind counter map from Lode record format.
// Handles both map[string]int64 (direct) and map[string]any (JSON round-trip).
func parseCountMap(v any) map[string]int64 {
	switch m := v.(type) {
	case map[string]int64:
		return m
	case map[string]any:
		result := make(map[string]int64, len(m))
		for k, val := range m {
			result[k] = toInt64(val)
		}
		return result
	default:
		return nil
	}
}
