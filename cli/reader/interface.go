package reader

import "context"

// Reader abstracts read-only data access for CLI commands.
// Implementations may read Lode transcript stores, use stubs, or aggregate
// from multiple sources.
//
// All methods are read-only and must not mutate state.
type Reader interface {
	// Inspect operations
	InspectValidation(ctx context.Context, validationID string) (*InspectValidationResponse, error)

	// List operations
	ListValidations(ctx context.Context, opts ListValidationsOptions) ([]ListValidationItem, error)

	// Stats operations
	StatsValidations(ctx context.Context) (*ValidationStats, error)
}

// defaultReader is the package-level reader instance.
// Initialized to StubReader by default.
var defaultReader Reader = NewStubReader()

// SetReader sets the package-level reader instance.
// Call this during initialization to wire up the real implementation.
func SetReader(r Reader) {
	defaultReader = r
}

// GetReader returns the current package-level reader instance.
func GetReader() Reader {
	return defaultReader
}
