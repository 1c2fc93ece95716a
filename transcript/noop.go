package transcript

import (
	"context"
	"sync"

	"github.com/pithecene-io/assay/types"
)

// NoopRecorder discards all records. Used when transcript persistence is
// disabled and in tests.
//
// Stats reflect droppable semantics: steps are counted as dropped, the
// result is counted as persisted (even though noop does not actually
// persist it).
type NoopRecorder struct {
	mu    sync.Mutex
	stats Stats
}

// NewNoopRecorder creates a new no-op recorder.
func NewNoopRecorder() *NoopRecorder {
	return &NoopRecorder{
		stats: Stats{
			DroppedByKind: make(map[string]int64),
		},
	}
}

// RecordStep accepts the step but does not persist it.
func (r *NoopRecorder) RecordStep(_ context.Context, _ *types.ValidationStep) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stats.TotalRecords++
	r.stats.RecordsDropped++
	r.stats.DroppedByKind[RecordKindStep]++

	return nil
}

// RecordResult accepts the result but does not persist it.
func (r *NoopRecorder) RecordResult(_ context.Context, _ *types.ValidationResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stats.TotalRecords++
	r.stats.RecordsPersisted++

	return nil
}

// Flush is a no-op.
func (r *NoopRecorder) Flush(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stats.FlushCount++

	return nil
}

// Close is a no-op.
func (r *NoopRecorder) Close() error {
	return nil
}

// Stats returns the recorder statistics.
func (r *NoopRecorder) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Return a copy with a copied map
	stats := r.stats
	stats.DroppedByKind = make(map[string]int64, len(r.stats.DroppedByKind))
	for k, v := range r.stats.DroppedByKind {
		stats.DroppedByKind[k] = v
	}

	return stats
}
