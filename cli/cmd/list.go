package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/assay/cli/reader"
	"github.com/pithecene-io/assay/cli/render"
)

// listWarningThreshold is the number of items above which we warn about using --limit.
const listWarningThreshold = 100

// isStderrTTY returns true if stderr is a TTY.
func isStderrTTY() bool {
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// ListCommand returns the list command with subcommands.
// List returns thin slices (not inspect-level detail) per CONTRACT_CLI.md.
func ListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List entities (validations)",
		Subcommands: []*cli.Command{
			listValidationsCommand(),
		},
	}
}

func listValidationsCommand() *cli.Command {
	return &cli.Command{
		Name:  "validations",
		Usage: "List stored validations",
		Flags: append(append(ReadOnlyFlags(),
			&cli.StringFlag{
				Name:  "profile",
				Usage: "Filter by validation profile",
			},
			&cli.StringFlag{
				Name:  "day",
				Usage: "Filter by day partition (YYYY-MM-DD)",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of validations to return (0 = no limit)",
				Value: 0,
			},
		), storageReadFlags()...),
		Action: listValidationsAction,
	}
}

func listValidationsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	// TUI not supported for list commands
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for list commands", 1)
	}

	rd, err := resolveReader(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
	}

	opts := reader.ListValidationsOptions{
		Profile: c.String("profile"),
		Day:     c.String("day"),
		Limit:   c.Int("limit"),
	}

	ctx, cancel := readContext()
	defer cancel()

	results, err := rd.ListValidations(ctx, opts)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
	}

	// Warn if output is large and --limit was not specified (TTY only to avoid noise in pipelines)
	if len(results) > listWarningThreshold && opts.Limit == 0 && isStderrTTY() {
		fmt.Fprintf(os.Stderr, "Warning: returning %d results. Consider using --limit to reduce output.\n\n", len(results))
	}

	return r.Render(results)
}
