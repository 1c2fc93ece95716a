package types

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// ValidationMeta carries the identity of one validation invocation. It is
// attached to logs, transcript records, reports, and completion events.
type ValidationMeta struct {
	// ValidationID is the canonical validation identifier. Must be unique
	// across invocations; NewValidationID generates a suitable one.
	ValidationID string
	// Profile is the lint profile requested.
	Profile Profile
	// PlaybookBytes is the size of the submitted playbook text.
	PlaybookBytes int
	// StartedAt is when Start was called.
	StartedAt time.Time
}

// Validate checks the identity rules:
//   - validation_id must be non-empty
//   - profile must be non-empty (unknown values are allowed, see Profile)
func (m *ValidationMeta) Validate() error {
	if m.ValidationID == "" {
		return errors.New("validation_id must be non-empty")
	}
	if m.Profile == "" {
		return fmt.Errorf("profile must be non-empty for validation %s", m.ValidationID)
	}
	return nil
}

// NewValidationID returns a fresh ULID. Lexicographic order follows wall
// clock order, which keeps transcript partitions listable by recency.
func NewValidationID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), rand.Reader).String()
}
