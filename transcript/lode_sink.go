package transcript

import (
	"context"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/assay/metrics"
	"github.com/pithecene-io/assay/types"
)

// DefaultDataset is the Lode dataset ID for validation transcripts.
const DefaultDataset = "assay"

// DeriveDay computes the partition day from validation start time.
// Format: YYYY-MM-DD in UTC.
func DeriveDay(startTime time.Time) string {
	return startTime.UTC().Format("2006-01-02")
}

// Config holds transcript storage configuration.
// All partition keys are required.
type Config struct {
	// Dataset is the Lode dataset ID (normally DefaultDataset).
	Dataset string
	// Source is the partition key for the origin system.
	Source string
	// Profile is the partition key for the validation profile.
	Profile string
	// Day is the partition key derived from validation start time (YYYY-MM-DD UTC).
	Day string
	// ValidationID is the partition key for the validation identifier.
	ValidationID string
}

// LodeSink is a Lode-backed implementation of Sink.
// Writes step and result records to Hive-partitioned storage with
// partition keys: source/profile/day/validation_id/record_kind.
type LodeSink struct {
	dataset lode.Dataset
	config  Config
}

// NewLodeSink creates a new Lode sink with filesystem storage.
// The root parameter is the base directory for Hive-partitioned storage.
func NewLodeSink(cfg Config, root string) (*LodeSink, error) {
	return NewLodeSinkWithFactory(cfg, lode.NewFSFactory(root))
}

// NewLodeSinkWithFactory creates a new Lode sink with a custom store factory.
// Use lode.NewMemoryFactory() for testing.
func NewLodeSinkWithFactory(cfg Config, factory lode.StoreFactory) (*LodeSink, error) {
	ds, err := newDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, WrapInitError(err, cfg.Dataset)
	}

	return &LodeSink{
		dataset: ds,
		config:  cfg,
	}, nil
}

// WriteSteps writes a batch of step records to Lode.
// Ordering within the batch is preserved by the JSONL codec.
func (s *LodeSink) WriteSteps(ctx context.Context, steps []*types.ValidationStep) error {
	if len(steps) == 0 {
		return nil
	}

	records := make([]any, 0, len(steps))
	for _, step := range steps {
		records = append(records, toStepRecordMap(step, s.config))
	}

	if _, err := s.dataset.Write(ctx, records, lode.Metadata{}); err != nil {
		return WrapWriteError(err, s.config.Dataset)
	}
	return nil
}

// WriteResult writes the result record to Lode.
func (s *LodeSink) WriteResult(ctx context.Context, result *types.ValidationResult) error {
	records := []any{toResultRecordMap(result, s.config)}

	if _, err := s.dataset.Write(ctx, records, lode.Metadata{}); err != nil {
		return WrapWriteError(err, s.config.Dataset)
	}
	return nil
}

// WriteMetrics writes the run's metrics snapshot as a record_kind=metrics
// record alongside the transcript. Written once, after the validation
// reaches a terminal state, so it is a method on the concrete sink rather
// than part of the Sink interface recorders batch through.
func (s *LodeSink) WriteMetrics(ctx context.Context, snap metrics.Snapshot) error {
	records := []any{toMetricsRecordMap(snap, s.config, time.Now())}

	if _, err := s.dataset.Write(ctx, records, lode.Metadata{}); err != nil {
		return WrapWriteError(err, s.config.Dataset)
	}
	return nil
}

// Close releases sink resources.
func (s *LodeSink) Close() error {
	// Dataset doesn't require explicit close in current Lode API
	return nil
}

// Verify LodeSink implements Sink.
var _ Sink = (*LodeSink)(nil)

// newDataset creates a Lode Dataset with the transcript layout and codec.
// Read and write paths share this so stored records stay compatible.
func newDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	return lode.NewDataset(
		lode.DatasetID(dataset),
		factory,
		lode.WithHiveLayout("source", "profile", "day", "validation_id", "record_kind"),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// NewReadDataset creates a Lode Dataset for reading transcripts.
func NewReadDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	return newDataset(dataset, factory)
}

// NewReadDatasetFS creates a read Dataset with filesystem storage.
func NewReadDatasetFS(dataset, rootPath string) (lode.Dataset, error) {
	return newDataset(dataset, lode.NewFSFactory(rootPath))
}
