// Package reader provides the read-side data access layer for the assay CLI.
//
// This package isolates read operations from session internals. All
// read-only commands (inspect, list) go through the Reader interface, so
// they work the same against filesystem stores, S3 stores, and stubs.
package reader

import "time"

// InspectValidationResponse per CONTRACT_CLI.md.
type InspectValidationResponse struct {
	ValidationID   string           `json:"validation_id"`
	Profile        string           `json:"profile"`
	Day            string           `json:"day"`
	Passed         *bool            `json:"passed"`
	FinalStatus    string           `json:"final_status,omitempty"`
	LintIterations int              `json:"lint_iterations"`
	FixesApplied   int              `json:"fixes_applied"`
	Steps          []InspectStep    `json:"steps"`
	ErrorMessage   string           `json:"error_message,omitempty"`
	Metrics        *MetricsSnapshot `json:"metrics,omitempty"`
}

// InspectStep is one transcript step within an inspect response.
type InspectStep struct {
	Index      int       `json:"step"`
	Action     string    `json:"agent_action"`
	Summary    string    `json:"summary"`
	Message    string    `json:"message,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// ListValidationItem per CONTRACT_CLI.md.
type ListValidationItem struct {
	ValidationID string `json:"validation_id"`
	Profile      string `json:"profile"`
	Day          string `json:"day"`
	HasResult    bool   `json:"has_result"`
}

// ListValidationsOptions for filtering list validations.
type ListValidationsOptions struct {
	Profile string
	Day     string
	Limit   int
}

// ValidationStats per CONTRACT_CLI.md.
type ValidationStats struct {
	Total     int            `json:"total"`
	Passed    int            `json:"passed"`
	Failed    int            `json:"failed"`
	NoResult  int            `json:"no_result"`
	ByProfile map[string]int `json:"by_profile,omitempty"`
}

// MetricsSnapshot per CONTRACT_METRICS.md.
type MetricsSnapshot struct {
	Ts string `json:"ts"`

	// Validation lifecycle
	ValidationsStarted   int64 `json:"validations_started"`
	ValidationsCompleted int64 `json:"validations_completed"`
	ValidationsFailed    int64 `json:"validations_failed"`
	ValidationsCancelled int64 `json:"validations_cancelled"`
	ValidationsTimedOut  int64 `json:"validations_timed_out"`

	// Stream processing
	LinesRead     int64            `json:"lines_read"`
	FramesParsed  int64            `json:"frames_parsed"`
	FramesByKind  map[string]int64 `json:"frames_by_kind,omitempty"`
	LinesSkipped  int64            `json:"lines_skipped"`
	ErrorFrames   int64            `json:"error_frames"`
	StepsObserved int64            `json:"steps_observed"`

	// Transcript
	RecordsBuffered  int64            `json:"records_buffered"`
	RecordsPersisted int64            `json:"records_persisted"`
	RecordsDropped   int64            `json:"records_dropped"`
	DroppedByKind    map[string]int64 `json:"dropped_by_kind,omitempty"`

	// Storage
	TranscriptWriteSuccess int64 `json:"transcript_write_success"`
	TranscriptWriteFailure int64 `json:"transcript_write_failure"`

	// Dimensions
	Backend        string `json:"backend"`
	StorageBackend string `json:"storage_backend"`
	Profile        string `json:"profile"`
	ValidationID   string `json:"validation_id"`
}
