package transcript

import (
	"context"

	"github.com/pithecene-io/assay/metrics"
	"github.com/pithecene-io/assay/types"
)

// InstrumentedSink wraps a Sink and records write metrics. Each
// WriteSteps/WriteResult call increments transcript_write_success or
// transcript_write_failure on the metrics collector.
type InstrumentedSink struct {
	inner     Sink
	collector *metrics.Collector
}

// NewInstrumentedSink wraps a sink with metrics instrumentation.
func NewInstrumentedSink(inner Sink, collector *metrics.Collector) *InstrumentedSink {
	return &InstrumentedSink{inner: inner, collector: collector}
}

// WriteSteps delegates to the inner sink and records success or failure.
func (s *InstrumentedSink) WriteSteps(ctx context.Context, steps []*types.ValidationStep) error {
	err := s.inner.WriteSteps(ctx, steps)
	if err != nil {
		s.collector.IncTranscriptWriteFailure()
	} else {
		s.collector.IncTranscriptWriteSuccess()
	}
	return err
}

// WriteResult delegates to the inner sink and records success or failure.
func (s *InstrumentedSink) WriteResult(ctx context.Context, result *types.ValidationResult) error {
	err := s.inner.WriteResult(ctx, result)
	if err != nil {
		s.collector.IncTranscriptWriteFailure()
	} else {
		s.collector.IncTranscriptWriteSuccess()
	}
	return err
}

// Close delegates to the inner sink.
func (s *InstrumentedSink) Close() error {
	return s.inner.Close()
}

// Verify InstrumentedSink implements Sink.
var _ Sink = (*InstrumentedSink)(nil)
