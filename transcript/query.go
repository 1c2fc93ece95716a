package transcript

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/assay/types"
)

// ErrTranscriptNotFound is returned when no records exist for a validation.
var ErrTranscriptNotFound = errors.New("no transcript records found")

// TranscriptView is a reconstructed validation transcript.
type TranscriptView struct {
	ValidationID string
	Profile      string
	Day          string
	// Steps in step-index order.
	Steps []types.ValidationStep
	// Result is nil if the validation never persisted a verdict.
	Result *types.ValidationResult
	// Metrics is the raw record_kind=metrics record, nil when the run
	// wrote none. Left untyped here; the CLI read layer parses it.
	Metrics map[string]any
}

// ValidationInfo summarizes one stored validation for listing.
type ValidationInfo struct {
	ValidationID string
	Profile      string
	Day          string
	// HasResult reports whether a result record was persisted.
	HasResult bool
}

// ReadTranscript reconstructs the transcript for a validation ID.
// A retried flush may have duplicated step records; duplicates collapse by
// step index, keeping the most recently written record.
// Returns ErrTranscriptNotFound if no records exist for the ID.
func ReadTranscript(ctx context.Context, ds lode.Dataset, validationID string) (*TranscriptView, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, "snapshots")
	}

	view := &TranscriptView{ValidationID: validationID}
	stepsByIndex := make(map[int]types.ValidationStep)
	found := false

	for _, snap := range snapshots {
		if !snapshotMatchesFilter(snap, "validation_id", validationID) {
			continue
		}

		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("snapshot/%s", snap.ID))
		}

		// Manifest path filtering is a coarse pre-filter; record fields
		// are authoritative (handles multi-validation snapshots).
		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if toString(record["validation_id"]) != validationID {
				continue
			}
			found = true
			if view.Profile == "" {
				view.Profile = toString(record["profile"])
			}
			if view.Day == "" {
				view.Day = toString(record["day"])
			}

			switch toString(record["record_kind"]) {
			case RecordKindStep:
				step := stepFromRecord(record)
				stepsByIndex[step.Index] = step
			case RecordKindResult:
				view.Result = resultFromRecord(record)
			case RecordKindMetrics:
				view.Metrics = record
			}
		}
	}

	if !found {
		return nil, ErrTranscriptNotFound
	}

	view.Steps = make([]types.ValidationStep, 0, len(stepsByIndex))
	for _, step := range stepsByIndex {
		view.Steps = append(view.Steps, step)
	}
	sort.Slice(view.Steps, func(i, j int) bool {
		return view.Steps[i].Index < view.Steps[j].Index
	})

	if view.Result != nil {
		view.Result.Steps = view.Steps
	}

	return view, nil
}

// ListValidations returns stored validations, most recent first.
// Built from snapshot manifests alone; no record data is read.
func ListValidations(ctx context.Context, ds lode.Dataset) ([]ValidationInfo, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, "snapshots")
	}

	index := make(map[string]*ValidationInfo)
	var order []string

	for _, snap := range snapshots {
		for _, f := range snap.Manifest.Files {
			id := partitionValue(f.Path, "validation_id")
			if id == "" {
				continue
			}
			info, ok := index[id]
			if !ok {
				info = &ValidationInfo{
					ValidationID: id,
					Profile:      partitionValue(f.Path, "profile"),
					Day:          partitionValue(f.Path, "day"),
				}
				index[id] = info
				order = append(order, id)
			}
			if partitionValue(f.Path, "record_kind") == RecordKindResult {
				info.HasResult = true
			}
		}
	}

	// Snapshots are ordered by creation time; reverse for latest first.
	out := make([]ValidationInfo, 0, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		out = append(out, *index[order[i]])
	}
	return out, nil
}

// snapshotMatchesFilter checks if a snapshot's file paths match
// the given partition key=value filter.
func snapshotMatchesFilter(snap *lode.DatasetSnapshot, key, value string) bool {
	if value == "" {
		return true
	}
	for _, f := range snap.Manifest.Files {
		if matchesPartitionValue(f.Path, key, value) {
			return true
		}
	}
	return false
}

// matchesPartitionValue checks if a Hive-partitioned path contains an exact
// key=value segment. Segments are delimited by "/" in paths. This avoids
// substring false positives (e.g., validation_id=val-1 matching
// validation_id=val-10).
func matchesPartitionValue(path, key, value string) bool {
	segment := key + "=" + value
	for _, part := range strings.Split(path, "/") {
		if part == segment {
			return true
		}
	}
	return false
}

// partitionValue extracts the value of a partition key from a Hive path.
// Returns empty string if the key is not present.
func partitionValue(path, key string) string {
	prefix := key + "="
	for _, part := range strings.Split(path, "/") {
		if strings.HasPrefix(part, prefix) {
			return part[len(prefix):]
		}
	}
	return ""
}
