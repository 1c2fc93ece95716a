package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/assay/cli/render"
	"github.com/pithecene-io/assay/types"
)

// ProfilesCommand returns the profiles command. It prints the known
// profile catalog without contacting the backend; unknown profiles are
// still accepted by validate, this is advisory.
func ProfilesCommand() *cli.Command {
	return &cli.Command{
		Name:   "profiles",
		Usage:  "List known validation profiles",
		Flags:  ReadOnlyFlags(),
		Action: profilesAction,
	}
}

func profilesAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	// TUI not supported for the profiles command
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for profiles command", 1)
	}

	return r.Render(types.KnownProfiles())
}
