package transcript

import (
	"context"

	"github.com/pithecene-io/assay/types"
)

// DirectRecorder implements synchronous, unbuffered persistence.
//
//   - No buffering: each record is written immediately
//   - No drops: all records are handed to the sink
//   - Backpressure: caller blocks on sink latency
//   - Sink errors are returned; the caller decides what they mean
type DirectRecorder struct {
	sink  Sink
	stats *statsRecorder
}

// NewDirectRecorder creates a new direct recorder writing to the given sink.
func NewDirectRecorder(sink Sink) *DirectRecorder {
	return &DirectRecorder{
		sink:  sink,
		stats: newStatsRecorder(),
	}
}

// RecordStep writes the step immediately to the sink.
func (r *DirectRecorder) RecordStep(ctx context.Context, step *types.ValidationStep) error {
	r.stats.incTotalRecords()

	// Write immediately (batch of 1)
	if err := r.sink.WriteSteps(ctx, []*types.ValidationStep{step}); err != nil {
		r.stats.incErrors()
		return err
	}

	r.stats.incRecordsPersisted(1)
	return nil
}

// RecordResult writes the result immediately to the sink.
func (r *DirectRecorder) RecordResult(ctx context.Context, result *types.ValidationResult) error {
	r.stats.incTotalRecords()

	if err := r.sink.WriteResult(ctx, result); err != nil {
		r.stats.incErrors()
		return err
	}

	r.stats.incRecordsPersisted(1)
	return nil
}

// Flush is a no-op for direct recording (nothing is buffered).
func (r *DirectRecorder) Flush(_ context.Context) error {
	r.stats.incFlush()
	return nil
}

// Close closes the underlying sink.
func (r *DirectRecorder) Close() error {
	return r.sink.Close()
}

// Stats returns recorder statistics.
func (r *DirectRecorder) Stats() Stats {
	return r.stats.snapshot()
}
