package transcript

import (
	"context"
	"errors"
	"sync"

	"github.com/pithecene-io/assay/log"
	"github.com/pithecene-io/assay/types"
)

// BufferedConfig configures a BufferedRecorder.
type BufferedConfig struct {
	// MaxBufferSteps is the maximum number of steps to buffer.
	// Zero means no limit (use MaxBufferBytes instead).
	MaxBufferSteps int

	// MaxBufferBytes is the maximum buffer size in bytes (estimated).
	// Zero means no limit (use MaxBufferSteps instead).
	// At least one limit must be set.
	MaxBufferBytes int64

	// Logger is an optional logger for recorder observability.
	// If nil, no logging is emitted.
	Logger *log.Logger
}

// DefaultBufferedConfig returns sensible defaults for buffered recording.
func DefaultBufferedConfig() BufferedConfig {
	return BufferedConfig{
		MaxBufferSteps: 1000,
		MaxBufferBytes: 10 * 1024 * 1024, // 10 MB
	}
}

// ErrBufferFull is returned when the buffer cannot accept the result record.
var ErrBufferFull = errors.New("buffer full: cannot accept result record")

// ErrInvalidConfig is returned when BufferedConfig is invalid.
var ErrInvalidConfig = errors.New("invalid config: at least one of MaxBufferSteps or MaxBufferBytes must be set")

// BufferedRecorder implements buffered persistence with drop rules.
//
//   - Bounded buffer with explicit limits
//   - May drop: step records when the buffer is full
//   - Must NOT drop: the result record
//   - Batch writes on flush; steps are written before the result
//   - Buffers are preserved on any write failure, so a retried flush may
//     duplicate records but never loses them
type BufferedRecorder struct {
	sink   Sink
	config BufferedConfig
	logger *log.Logger

	mu          sync.Mutex // guards buffer state only
	stepBuffer  []*types.ValidationStep
	result      *types.ValidationResult
	bufferBytes int64
	stats       *statsRecorder
}

// NewBufferedRecorder creates a new buffered recorder.
// Returns error if config is invalid.
func NewBufferedRecorder(sink Sink, config BufferedConfig) (*BufferedRecorder, error) {
	if config.MaxBufferSteps <= 0 && config.MaxBufferBytes <= 0 {
		return nil, ErrInvalidConfig
	}

	return &BufferedRecorder{
		sink:       sink,
		config:     config,
		logger:     config.Logger,
		stepBuffer: make([]*types.ValidationStep, 0, max(config.MaxBufferSteps, 64)),
		stats:      newStatsRecorder(),
	}, nil
}

// RecordStep buffers the step, dropping it if the buffer is full.
func (r *BufferedRecorder) RecordStep(_ context.Context, step *types.ValidationStep) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stats.incTotalRecordsLocked()

	stepSize := estimateStepSize(step)
	if !r.hasRoomForStep(stepSize) {
		r.stats.incRecordsDroppedLocked(RecordKindStep)
		r.logDrop("buffer_full")
		return nil
	}

	r.stepBuffer = append(r.stepBuffer, step)
	r.bufferBytes += stepSize
	r.stats.setBufferSizeLocked(r.bufferBytes)

	return nil
}

// RecordResult buffers the result for the next flush.
// The result is never dropped. If the byte limit would be exceeded, the
// oldest buffered steps are evicted to make room; if the result alone
// exceeds the limit, ErrBufferFull is returned.
func (r *BufferedRecorder) RecordResult(_ context.Context, result *types.ValidationResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stats.incTotalRecordsLocked()

	resultSize := estimateResultSize(result)
	for !r.hasRoomForBytes(resultSize) {
		if !r.dropOldestStep() {
			r.stats.incErrorsLocked()
			r.logOverflow(resultSize)
			return ErrBufferFull
		}
	}

	r.result = result
	r.bufferBytes += resultSize
	r.stats.setBufferSizeLocked(r.bufferBytes)

	return nil
}

// Flush writes buffered steps, then the result, to the sink.
// All buffers are kept intact on any failure; a later retry may duplicate
// records that were written before the failure.
func (r *BufferedRecorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	r.stats.incFlushLocked()
	steps := r.stepBuffer
	result := r.result
	r.mu.Unlock()

	if len(steps) > 0 {
		if err := r.sink.WriteSteps(ctx, steps); err != nil {
			r.mu.Lock()
			r.stats.incErrorsLocked()
			r.mu.Unlock()
			r.logFlushFailure("steps", err)
			return err
		}
		r.mu.Lock()
		r.stats.incRecordsPersistedLocked(int64(len(steps)))
		r.mu.Unlock()
	}

	if result != nil {
		if err := r.sink.WriteResult(ctx, result); err != nil {
			r.mu.Lock()
			r.stats.incErrorsLocked()
			r.mu.Unlock()
			r.logFlushFailure("result", err)
			return err
		}
		r.mu.Lock()
		r.stats.incRecordsPersistedLocked(1)
		r.mu.Unlock()
	}

	// Clear buffers only after full success
	r.mu.Lock()
	r.stepBuffer = make([]*types.ValidationStep, 0, max(r.config.MaxBufferSteps, 64))
	r.result = nil
	r.bufferBytes = 0
	r.stats.setBufferSizeLocked(0)
	r.mu.Unlock()

	return nil
}

// Close flushes remaining data and closes the sink.
func (r *BufferedRecorder) Close() error {
	// Best-effort flush on close
	_ = r.Flush(context.Background())
	return r.sink.Close()
}

// Stats returns recorder statistics.
// Returns an atomic snapshot: the buffer mutex is held while taking the
// snapshot, ensuring all counters and buffer size are captured from the
// same point in time.
func (r *BufferedRecorder) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.stats.snapshotLocked(r.bufferBytes)
}

// hasRoomForStep checks if the buffer can accept a step of the given size.
func (r *BufferedRecorder) hasRoomForStep(stepSize int64) bool {
	if r.config.MaxBufferSteps > 0 && len(r.stepBuffer) >= r.config.MaxBufferSteps {
		return false
	}
	return r.hasRoomForBytes(stepSize)
}

// hasRoomForBytes checks if adding bytes would exceed the byte limit.
func (r *BufferedRecorder) hasRoomForBytes(size int64) bool {
	if r.config.MaxBufferBytes > 0 && r.bufferBytes+size > r.config.MaxBufferBytes {
		return false
	}
	return true
}

// dropOldestStep removes the oldest buffered step to make room.
// Returns false if the buffer holds no steps. Caller must hold mu.
func (r *BufferedRecorder) dropOldestStep() bool {
	if len(r.stepBuffer) == 0 {
		return false
	}

	stepSize := estimateStepSize(r.stepBuffer[0])
	r.stepBuffer = r.stepBuffer[1:]
	r.bufferBytes -= stepSize
	r.stats.setBufferSizeLocked(r.bufferBytes)
	r.stats.incRecordsDroppedLocked(RecordKindStep)
	r.logDrop("evicted_for_result")

	return true
}

// estimateStepSize returns an estimated size in bytes for a step.
// This is a rough estimate for buffer management.
func estimateStepSize(step *types.ValidationStep) int64 {
	size := int64(100)
	size += int64(len(step.Summary) + len(step.Code) + len(step.Message))
	return size
}

// estimateResultSize returns an estimated size in bytes for a result.
func estimateResultSize(result *types.ValidationResult) int64 {
	size := int64(200)
	size += int64(len(result.FinalPlaybook) + len(result.OriginalPlaybook) + len(result.ErrorMessage))
	size += int64(len(result.Issues) * 100)
	for _, step := range result.Steps {
		size += estimateStepSize(&step)
	}
	return size
}

// --- Logging helpers ---

func (r *BufferedRecorder) logDrop(reason string) {
	if r.logger == nil {
		return
	}
	r.logger.Warn("step record dropped", map[string]any{
		"reason":   reason,
		"recorder": "buffered",
	})
}

func (r *BufferedRecorder) logOverflow(resultSize int64) {
	if r.logger == nil {
		return
	}
	r.logger.Error("result record exceeds buffer limit", map[string]any{
		"result_size":  resultSize,
		"buffer_limit": r.config.MaxBufferBytes,
		"recorder":     "buffered",
	})
}

func (r *BufferedRecorder) logFlushFailure(stage string, err error) {
	if r.logger == nil {
		return
	}
	r.logger.Error("transcript flush failed", map[string]any{
		"stage":    stage,
		"error":    err.Error(),
		"recorder": "buffered",
	})
}
