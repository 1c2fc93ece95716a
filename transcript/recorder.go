// Package transcript persists validation steps and results for later
// inspection and replay.
//
// A Recorder receives steps and the final result as the session observes
// them and hands them to a Sink. Recorder failures never decide a
// validation verdict; the session logs them and keeps streaming.
package transcript

import (
	"context"
	"sync"

	"github.com/pithecene-io/assay/types"
)

// Record kind discriminators. Every stored record carries one.
const (
	RecordKindStep    = "step"
	RecordKindResult  = "result"
	RecordKindMetrics = "metrics"
)

// Recorder accumulates validation records and controls when they reach
// the sink.
//
// Semantics:
//   - May drop: step records (progress detail), when buffering overflows
//   - Must NOT drop: the result record (the verdict)
//   - Recorders must not alter record contents
type Recorder interface {
	// RecordStep handles one validation step.
	// Buffered recorders may drop steps when the buffer is full.
	RecordStep(ctx context.Context, step *types.ValidationStep) error

	// RecordResult handles the final validation result.
	// Never dropped; an error here means the verdict was not persisted.
	RecordResult(ctx context.Context, result *types.ValidationResult) error

	// Flush writes any buffered records.
	// Called when the session reaches a terminal state.
	Flush(ctx context.Context) error

	// Close cleans up recorder resources.
	Close() error

	// Stats returns recorder statistics for observability.
	// Returns an atomic snapshot; all counters in the returned Stats are
	// consistent with each other.
	Stats() Stats
}

// Stats represents recorder observability metrics.
type Stats struct {
	// TotalRecords is the total number of records received.
	TotalRecords int64
	// RecordsPersisted is the number of records written to the sink.
	RecordsPersisted int64
	// RecordsDropped is the total number of records dropped.
	RecordsDropped int64
	// DroppedByKind maps record kinds to drop counts.
	DroppedByKind map[string]int64
	// BufferSize is the current buffer size in bytes (if buffered).
	BufferSize int64
	// FlushCount is the number of flush operations.
	FlushCount int64
	// Errors is the count of sink errors encountered.
	Errors int64
}

// IsDroppable returns true if the record kind may be dropped by a recorder.
// Only step records are droppable; the result is always kept.
func IsDroppable(kind string) bool {
	return kind == RecordKindStep
}

// statsRecorder is an internal helper for thread-safe stats management.
// Recorders call explicit methods to record mutations; the helper does not
// infer or automate any recorder decisions.
//
// Lock discipline:
//   - DirectRecorder uses the locking methods (incTotalRecords, snapshot, etc.)
//   - BufferedRecorder uses the Locked methods (incTotalRecordsLocked,
//     snapshotLocked, etc.) only while holding BufferedRecorder.mu. This
//     keeps buffer state and stats counters atomic with each other.
type statsRecorder struct {
	mu    sync.Mutex
	stats Stats
}

// newStatsRecorder creates a new recorder with an initialized DroppedByKind map.
func newStatsRecorder() *statsRecorder {
	return &statsRecorder{
		stats: Stats{
			DroppedByKind: make(map[string]int64),
		},
	}
}

func (r *statsRecorder) incTotalRecords() {
	r.mu.Lock()
	r.stats.TotalRecords++
	r.mu.Unlock()
}

func (r *statsRecorder) incRecordsPersisted(n int64) {
	r.mu.Lock()
	r.stats.RecordsPersisted += n
	r.mu.Unlock()
}

func (r *statsRecorder) incErrors() {
	r.mu.Lock()
	r.stats.Errors++
	r.mu.Unlock()
}

func (r *statsRecorder) incFlush() {
	r.mu.Lock()
	r.stats.FlushCount++
	r.mu.Unlock()
}

func (r *statsRecorder) snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.stats
	s.DroppedByKind = make(map[string]int64, len(r.stats.DroppedByKind))
	for k, v := range r.stats.DroppedByKind {
		s.DroppedByKind[k] = v
	}
	return s
}

// --- Locked methods for BufferedRecorder ---
// Caller must hold BufferedRecorder.mu.

func (r *statsRecorder) incTotalRecordsLocked() {
	r.stats.TotalRecords++
}

func (r *statsRecorder) incRecordsPersistedLocked(n int64) {
	r.stats.RecordsPersisted += n
}

func (r *statsRecorder) incRecordsDroppedLocked(kind string) {
	r.stats.RecordsDropped++
	r.stats.DroppedByKind[kind]++
}

func (r *statsRecorder) incErrorsLocked() {
	r.stats.Errors++
}

func (r *statsRecorder) incFlushLocked() {
	r.stats.FlushCount++
}

func (r *statsRecorder) setBufferSizeLocked(bytes int64) {
	r.stats.BufferSize = bytes
}

// snapshotLocked returns an atomic snapshot of stats with the given bufferSize.
// Caller must hold BufferedRecorder.mu.
func (r *statsRecorder) snapshotLocked(bufferSize int64) Stats {
	s := r.stats
	s.BufferSize = bufferSize
	s.DroppedByKind = make(map[string]int64, len(r.stats.DroppedByKind))
	for k, v := range r.stats.DroppedByKind {
		s.DroppedByKind[k] = v
	}
	return s
}
