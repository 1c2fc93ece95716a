package transcript

import (
	"context"
	"sync"

	"github.com/pithecene-io/assay/types"
)

// Sink abstracts persistence for recorders.
// Implementations may write to storage, forward to a queue, or stub for testing.
//
// Methods are batch-oriented to support both direct (batch of 1) and
// buffered recorders.
type Sink interface {
	// WriteSteps persists a batch of validation steps.
	// Must preserve ordering within the batch.
	// Returns error on failure; caller decides whether to retry.
	WriteSteps(ctx context.Context, steps []*types.ValidationStep) error

	// WriteResult persists the final validation result.
	// Returns error on failure; caller decides whether to retry.
	WriteResult(ctx context.Context, result *types.ValidationResult) error

	// Close releases any resources held by the sink.
	Close() error
}

// WriteOp represents a write operation for ordering verification.
type WriteOp struct {
	Kind   string // "steps" or "result"
	Steps  []*types.ValidationStep
	Result *types.ValidationResult
}

// StubSink is a test sink that accepts writes without persisting.
// Tracks write statistics for test assertions.
type StubSink struct {
	mu sync.Mutex

	// StepsWritten is the total count of steps written.
	StepsWritten int64
	// ResultsWritten is the total count of results written.
	ResultsWritten int64
	// StepBatches is the number of WriteSteps calls.
	StepBatches int64
	// Closed indicates whether Close was called.
	Closed bool

	// WrittenSteps stores all written steps for inspection.
	WrittenSteps []*types.ValidationStep
	// WrittenResults stores all written results for inspection.
	WrittenResults []*types.ValidationResult

	// WriteOrder tracks the order of write operations for ordering tests.
	WriteOrder []WriteOp

	// ErrorOnWrite, if non-nil, is returned by WriteSteps/WriteResult.
	ErrorOnWrite error
}

// NewStubSink creates a new stub sink for testing.
func NewStubSink() *StubSink {
	return &StubSink{
		WrittenSteps:   make([]*types.ValidationStep, 0),
		WrittenResults: make([]*types.ValidationResult, 0),
		WriteOrder:     make([]WriteOp, 0),
	}
}

// WriteSteps records the steps without persisting.
func (s *StubSink) WriteSteps(_ context.Context, steps []*types.ValidationStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ErrorOnWrite != nil {
		return s.ErrorOnWrite
	}

	s.StepBatches++
	s.StepsWritten += int64(len(steps))
	s.WrittenSteps = append(s.WrittenSteps, steps...)
	s.WriteOrder = append(s.WriteOrder, WriteOp{Kind: "steps", Steps: steps})

	return nil
}

// WriteResult records the result without persisting.
func (s *StubSink) WriteResult(_ context.Context, result *types.ValidationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ErrorOnWrite != nil {
		return s.ErrorOnWrite
	}

	s.ResultsWritten++
	s.WrittenResults = append(s.WrittenResults, result)
	s.WriteOrder = append(s.WriteOrder, WriteOp{Kind: "result", Result: result})

	return nil
}

// Close marks the sink as closed.
func (s *StubSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Closed = true
	return nil
}

// Stats returns a snapshot of sink statistics.
func (s *StubSink) Stats() StubSinkStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return StubSinkStats{
		StepsWritten:   s.StepsWritten,
		ResultsWritten: s.ResultsWritten,
		StepBatches:    s.StepBatches,
		Closed:         s.Closed,
	}
}

// StubSinkStats is a snapshot of StubSink statistics.
type StubSinkStats struct {
	StepsWritten   int64
	ResultsWritten int64
	StepBatches    int64
	Closed         bool
}
