package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/assay/capture"
	"github.com/pithecene-io/assay/log"
	"github.com/pithecene-io/assay/metrics"
	"github.com/pithecene-io/assay/session"
	"github.com/pithecene-io/assay/transcript"
	"github.com/pithecene-io/assay/types"
	"github.com/pithecene-io/assay/wire"
)

// ReplayCommand creates the replay command. Replay folds a capture file
// through the same frame classification and reduction as a live stream,
// reproducing the verdict offline. It never contacts the backend, so a
// capture from a flaky run can be re-examined without re-running the
// validation.
func ReplayCommand() *cli.Command {
	return &cli.Command{
		Name:      "replay",
		Usage:     "Re-reduce a captured validation stream offline",
		ArgsUsage: "<capture-file>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "profile",
				Usage: "Profile recorded for the replayed validation",
				Value: string(types.DefaultProfile),
			},
			&cli.StringFlag{
				Name:  "validation-id",
				Usage: "Validation ID recorded for the replayed validation",
			},
			&cli.StringFlag{
				Name:  "report",
				Usage: "Write a JSON validation report to a file (- for stderr)",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "Suppress the result summary on stdout",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Emit structured reduction logs on stderr",
			},
		},
		Action: replayAction,
	}
}

func replayAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("capture-file required", 1)
	}
	path := c.Args().First()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cli.Exit(fmt.Sprintf("Error: capture file not found: %s", path), exitConfigError)
		}
		return cli.Exit(fmt.Sprintf("Error: cannot open capture file: %v", err), exitConfigError)
	}
	defer f.Close()

	profile := types.Profile(c.String("profile"))
	validationID := c.String("validation-id")
	if validationID == "" {
		validationID = types.NewValidationID()
	}

	collector := metrics.NewCollector(string(profile), "replay", "none", validationID)
	logger := log.NewLogger(&types.ValidationMeta{
		ValidationID: validationID,
		Profile:      profile,
	}).WithOutput(logOutput(c.Bool("verbose")))

	reducer := session.NewReducer(session.ReducerConfig{
		Logger:    logger,
		Collector: collector,
	})

	collector.IncValidationStarted()
	state, errMsg, streamElapsed := replayCapture(context.Background(), f, reducer, collector, os.Stderr)

	startedAt := time.Now()
	snap := session.Snapshot{
		State:        state,
		ValidationID: validationID,
		Profile:      profile,
		Steps:        reducer.Steps(),
		Result:       reducer.Result(),
		ErrorMessage: errMsg,
		StartedAt:    startedAt,
		// The report duration is the original stream span from the
		// capture timestamps, not the replay wall time.
		FinishedAt: startedAt.Add(streamElapsed),
	}

	exitCode := session.ExitCodeFor(snap)

	if reportPath := c.String("report"); reportPath != "" {
		report := session.BuildValidationReport(snap, collector.Snapshot(), transcript.Stats{}, exitCode)
		if err := session.WriteValidationReport(report, reportPath); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to write report: %v\n", err)
		}
	}

	if !c.Bool("quiet") {
		printValidationResult(os.Stdout, snap, streamElapsed)
	}

	return cli.Exit("", exitCode)
}

// replayCapture folds capture entries through frame classification and
// the reducer, with the same skip and terminal semantics as the live
// stream loop. Returns the terminal state, the failure message if any,
// and the stream span covered by the capture.
func replayCapture(ctx context.Context, r io.Reader, reducer *session.Reducer, collector *metrics.Collector, warn io.Writer) (session.State, string, time.Duration) {
	entries := capture.NewReader(r)
	var elapsed time.Duration

	for {
		entry, err := entries.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			var entryErr *capture.EntryError
			if errors.As(err, &entryErr) && entryErr.Kind == capture.EntryErrorDecode {
				// One undecodable entry does not abandon the capture.
				fmt.Fprintf(warn, "Warning: skipping undecodable capture entry: %v\n", err)
				continue
			}
			// Partial or oversized entries mean the rest of the file is
			// unreadable; reduce what arrived before the damage.
			fmt.Fprintf(warn, "Warning: capture truncated: %v\n", err)
			break
		}
		elapsed = entry.Elapsed()
		collector.IncLineRead()

		frame, err := wire.ParseLine(entry.Line)
		if err != nil {
			// Empty lines are keep-alives, not skips.
			var parseErr *wire.ParseError
			if !errors.As(err, &parseErr) || parseErr.Kind != wire.ParseErrorEmpty {
				collector.IncLineSkipped()
			}
			continue
		}
		collector.IncFrameParsed(frame.Kind())

		done, applyErr := reducer.Apply(ctx, frame)
		if !done {
			continue
		}
		if applyErr != nil {
			collector.IncValidationFailed()
			return session.StateFailed, applyErr.Error(), elapsed
		}
		collector.IncValidationCompleted()
		return session.StateCompleted, "", elapsed
	}

	// The capture ended without a terminal frame; synthesize the outcome
	// exactly as the live path does when the stream closes early.
	if err := reducer.Finish(ctx); err != nil {
		collector.IncValidationFailed()
		return session.StateFailed, err.Error(), elapsed
	}
	collector.IncValidationCompleted()
	return session.StateCompleted, "", elapsed
}
