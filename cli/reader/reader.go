package reader

import (
	"context"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/assay/transcript"
)

// LodeReader reads validation transcripts from a Lode dataset.
// The dataset comes from transcript.NewReadDatasetFS or NewReadDatasetS3,
// so reads see exactly what the validate command wrote.
type LodeReader struct {
	ds lode.Dataset
}

// NewLodeReader creates a reader over an open Lode dataset.
func NewLodeReader(ds lode.Dataset) *LodeReader {
	return &LodeReader{ds: ds}
}

// InspectValidation reconstructs one validation's transcript.
// Returns transcript.ErrTranscriptNotFound when the ID has no records.
func (r *LodeReader) InspectValidation(ctx context.Context, validationID string) (*InspectValidationResponse, error) {
	view, err := transcript.ReadTranscript(ctx, r.ds, validationID)
	if err != nil {
		return nil, err
	}
	return inspectFromView(view)
}

// ListValidations lists stored validations with filtering applied.
func (r *LodeReader) ListValidations(ctx context.Context, opts ListValidationsOptions) ([]ListValidationItem, error) {
	infos, err := transcript.ListValidations(ctx, r.ds)
	if err != nil {
		return nil, err
	}

	items := make([]ListValidationItem, 0, len(infos))
	for _, info := range infos {
		items = append(items, ListValidationItem{
			ValidationID: info.ValidationID,
			Profile:      info.Profile,
			Day:          info.Day,
			HasResult:    info.HasResult,
		})
	}
	return applyListOptions(items, opts), nil
}

// StatsValidations aggregates verdicts across the store. Validations with
// a result record are read individually for their verdict; ones without
// count as no_result.
func (r *LodeReader) StatsValidations(ctx context.Context) (*ValidationStats, error) {
	infos, err := transcript.ListValidations(ctx, r.ds)
	if err != nil {
		return nil, err
	}

	stats := &ValidationStats{ByProfile: make(map[string]int)}
	for _, info := range infos {
		stats.Total++
		if info.Profile != "" {
			stats.ByProfile[info.Profile]++
		}
		if !info.HasResult {
			stats.NoResult++
			continue
		}

		view, err := transcript.ReadTranscript(ctx, r.ds, info.ValidationID)
		if err != nil {
			return nil, err
		}
		if view.Result != nil && view.Result.Passed {
			stats.Passed++
		} else {
			stats.Failed++
		}
	}
	return stats, nil
}

// Verify LodeReader implements Reader.
var _ Reader = (*LodeReader)(nil)
