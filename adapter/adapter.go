// Package adapter defines the completion-notification boundary.
//
// Adapters publish validation completion events to downstream systems.
// The CLI owns adapter lifecycle; users provide configuration only.
package adapter

import (
	"context"
	"fmt"
	"time"
)

// EventSchemaVersion is the payload schema version stamped on every event.
const EventSchemaVersion = "1.0"

// EventTypeValidationCompleted is the event_type of every published event.
const EventTypeValidationCompleted = "validation_completed"

// ValidationCompletedEvent is the payload published when a validation
// reaches a terminal state.
type ValidationCompletedEvent struct {
	SchemaVersion string `json:"schema_version"`
	EventType     string `json:"event_type"` // always "validation_completed"
	ValidationID  string `json:"validation_id"`
	Profile       string `json:"profile"`
	State         string `json:"state"` // completed, failed, cancelled
	Passed        *bool  `json:"passed,omitempty"`
	StepCount     int    `json:"step_count"`
	FixesApplied  int    `json:"fixes_applied"`
	ErrorMessage  string `json:"error_message,omitempty"`
	// StoragePath locates the persisted transcript, when one was written.
	StoragePath string `json:"storage_path,omitempty"`
	Timestamp   string `json:"timestamp"` // ISO 8601
	DurationMs  int64  `json:"duration_ms"`
}

// Adapter publishes validation completion events to a downstream system.
// Implementations must be safe for single-use per validation.
type Adapter interface {
	// Publish sends a completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *ValidationCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// baseBackoff is the delay before the first retry; it doubles per attempt.
const baseBackoff = 500 * time.Millisecond

// Retry runs attempt up to 1+retries times with exponential backoff between
// tries (500ms, 1s, 2s, ...). A nil retriable treats every error as
// retriable; an error retriable rejects is returned as-is without further
// attempts. A done context stops the loop, including mid-backoff.
func Retry(ctx context.Context, retries int, attempt func(context.Context) error, retriable func(error) bool) error {
	attempts := 1 + retries
	var lastErr error

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context canceled: %w", err)
		}

		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * baseBackoff
			select {
			case <-ctx.Done():
				return fmt.Errorf("context canceled during backoff: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}

		lastErr = attempt(ctx)
		if lastErr == nil {
			return nil
		}
		if retriable != nil && !retriable(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}
