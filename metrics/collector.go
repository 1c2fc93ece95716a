// Package metrics provides per-validation metrics collection.
//
// The Collector accumulates counters during a single validation. It is a leaf
// package with no internal dependencies. Transcript recorder metrics are
// absorbed from recorder stats at validation completion rather than recorded
// live, avoiding double-counting.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all collected metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Validation lifecycle
	ValidationsStarted   int64
	ValidationsCompleted int64
	ValidationsFailed    int64
	ValidationsCancelled int64
	ValidationsTimedOut  int64

	// Stream processing
	LinesRead     int64
	FramesParsed  int64
	FramesByKind  map[string]int64
	LinesSkipped  int64
	ErrorFrames   int64
	StepsObserved int64

	// Transcript (absorbed from recorder stats at validation completion)
	RecordsBuffered  int64
	RecordsPersisted int64
	RecordsDropped   int64
	DroppedByKind    map[string]int64

	// Storage
	TranscriptWriteSuccess int64
	TranscriptWriteFailure int64

	// Dimensions (informational, set at construction)
	Profile        string
	Backend        string
	StorageBackend string
	ValidationID   string
}

// Collector accumulates metrics during a single validation.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	// Validation lifecycle
	validationsStarted   int64
	validationsCompleted int64
	validationsFailed    int64
	validationsCancelled int64
	validationsTimedOut  int64

	// Stream processing
	linesRead     int64
	framesParsed  int64
	framesByKind  map[string]int64
	linesSkipped  int64
	errorFrames   int64
	stepsObserved int64

	// Storage
	transcriptWriteSuccess int64
	transcriptWriteFailure int64

	// Transcript (set once via AbsorbRecorderStats)
	recordsBuffered  int64
	recordsPersisted int64
	recordsDropped   int64
	droppedByKind    map[string]int64

	// Dimensions
	profile        string
	backend        string
	storageBackend string
	validationID   string
}

// NewCollector creates a Collector with dimension labels.
// profile and backend identify the validation configuration; storageBackend
// names the transcript store. validationID is an optional dimension.
func NewCollector(profile, backend, storageBackend, validationID string) *Collector {
	return &Collector{
		framesByKind:   make(map[string]int64),
		droppedByKind:  make(map[string]int64),
		profile:        profile,
		backend:        backend,
		storageBackend: storageBackend,
		validationID:   validationID,
	}
}

// --- Validation lifecycle ---

// IncValidationStarted records a validation start.
func (c *Collector) IncValidationStarted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.validationsStarted++
	c.mu.Unlock()
}

// IncValidationCompleted records a validation that reached a verdict.
func (c *Collector) IncValidationCompleted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.validationsCompleted++
	c.mu.Unlock()
}

// IncValidationFailed records a validation that ended in failure
// (backend error, transport error, or timeout).
func (c *Collector) IncValidationFailed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.validationsFailed++
	c.mu.Unlock()
}

// IncValidationCancelled records a user-initiated cancellation.
func (c *Collector) IncValidationCancelled() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.validationsCancelled++
	c.mu.Unlock()
}

// IncValidationTimedOut records a validation aborted by the overall or
// stream inactivity deadline. Counted in addition to IncValidationFailed.
func (c *Collector) IncValidationTimedOut() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.validationsTimedOut++
	c.mu.Unlock()
}

// --- Stream processing ---

// IncLineRead records one line delivered by the stream scanner.
func (c *Collector) IncLineRead() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.linesRead++
	c.mu.Unlock()
}

// IncFrameParsed records a successfully classified frame of the given kind.
func (c *Collector) IncFrameParsed(kind string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.framesParsed++
	c.framesByKind[kind]++
	c.mu.Unlock()
}

// IncLineSkipped records a line that parsed to no frame (blank, malformed
// JSON, or unrecognized shape).
func (c *Collector) IncLineSkipped() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.linesSkipped++
	c.mu.Unlock()
}

// IncErrorFrame records an explicit error frame received from the backend.
func (c *Collector) IncErrorFrame() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.errorFrames++
	c.mu.Unlock()
}

// IncStepObserved records a validation step appended to session state,
// whether streamed as progress or synthesized from a result payload.
func (c *Collector) IncStepObserved() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.stepsObserved++
	c.mu.Unlock()
}

// --- Storage ---
// Transcript counters are per-call, not per-record. A single WriteSteps call
// with N steps counts as 1 success. Per-record granularity is tracked
// separately by recorder stats (records_persisted_total).

// IncTranscriptWriteSuccess records a successful transcript write (per-call).
func (c *Collector) IncTranscriptWriteSuccess() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.transcriptWriteSuccess++
	c.mu.Unlock()
}

// IncTranscriptWriteFailure records a failed transcript write (per-call).
func (c *Collector) IncTranscriptWriteFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.transcriptWriteFailure++
	c.mu.Unlock()
}

// --- Transcript (absorbed from recorder stats) ---

// AbsorbRecorderStats copies transcript counters from the recorder into the
// collector. Called once after validation completion with the final recorder
// stats snapshot. The droppedByKind map keys are string-typed record kinds to
// keep this package free of dependencies on the transcript package.
func (c *Collector) AbsorbRecorderStats(buffered, persisted, dropped int64, droppedByKind map[string]int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.recordsBuffered = buffered
	c.recordsPersisted = persisted
	c.recordsDropped = dropped
	c.droppedByKind = make(map[string]int64, len(droppedByKind))
	for k, v := range droppedByKind {
		c.droppedByKind[k] = v
	}
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	frames := make(map[string]int64, len(c.framesByKind))
	for k, v := range c.framesByKind {
		frames[k] = v
	}
	dropped := make(map[string]int64, len(c.droppedByKind))
	for k, v := range c.droppedByKind {
		dropped[k] = v
	}

	return Snapshot{
		ValidationsStarted:   c.validationsStarted,
		ValidationsCompleted: c.validationsCompleted,
		ValidationsFailed:    c.validationsFailed,
		ValidationsCancelled: c.validationsCancelled,
		ValidationsTimedOut:  c.validationsTimedOut,

		LinesRead:     c.linesRead,
		FramesParsed:  c.framesParsed,
		FramesByKind:  frames,
		LinesSkipped:  c.linesSkipped,
		ErrorFrames:   c.errorFrames,
		StepsObserved: c.stepsObserved,

		RecordsBuffered:  c.recordsBuffered,
		RecordsPersisted: c.recordsPersisted,
		RecordsDropped:   c.recordsDropped,
		DroppedByKind:    dropped,

		TranscriptWriteSuccess: c.transcriptWriteSuccess,
		TranscriptWriteFailure: c.transcriptWriteFailure,

		Profile:        c.profile,
		Backend:        c.backend,
		StorageBackend: c.storageBackend,
		ValidationID:   c.validationID,
	}
}
