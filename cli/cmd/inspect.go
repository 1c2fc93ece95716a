package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/assay/cli/render"
)

// InspectCommand returns the inspect command with subcommands.
// Inspect returns a deep view of a single entity per CONTRACT_CLI.md.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: "Inspect a single entity (validation)",
		Subcommands: []*cli.Command{
			inspectValidationCommand(),
		},
	}
}

func inspectValidationCommand() *cli.Command {
	return &cli.Command{
		Name:      "validation",
		Usage:     "Inspect a validation by ID",
		ArgsUsage: "<validation-id>",
		Flags:     append(TUIReadOnlyFlags(), storageReadFlags()...),
		Action:    inspectValidationAction,
	}
}

func inspectValidationAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("validation-id required", 1)
	}
	validationID := c.Args().First()

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

	resp, err := rd.InspectValidation(ctx, validationID)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
	}

	if c.Bool("tui") {
		return r.RenderTUI("inspect_validation", resp)
	}

	return r.Render(resp)
}
