package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/assay/cli/render"
)

// StatsCommand returns the stats command with subcommands.
// Stats returns aggregated, derived facts per CONTRACT_CLI.md.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show aggregated statistics (validations)",
		Subcommands: []*cli.Command{
			statsValidationsCommand(),
		},
	}
}

func statsValidationsCommand() *cli.Command {
	return &cli.Command{
		Name:   "validations",
		Usage:  "Show validation statistics",
		Flags:  append(TUIReadOnlyFlags(), storageReadFlags()...),
		Action: statsValidationsAction,
	}
}

func statsValidationsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	rd, err := resolveReader(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
	}

	ctx, cancel := readContext()
	defer cancel()

	stats, err := rd.StatsValidations(ctx)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
	}

	if c.Bool("tui") {
		return r.RenderTUI("stats_validations", stats)
	}

	return r.Render(stats)
}
