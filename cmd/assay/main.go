// Package main provides the assay CLI entrypoint.
//
// The CLI is the only execution entrypoint per CONTRACT_CLI.md.
// All commands except `validate` and `replay` are read-only.
//
// Usage:
//
//	assay <command> [subcommand] [options]
//
// Exit codes for `validate` and `replay` per CONTRACT_CLI.md:
//   - 0: validation passed
//   - 1: validation failed
//   - 2: error (backend error, timeout, bad configuration)
//   - 3: cancelled by the operator
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/assay/cli/cmd"
	"github.com/pithecene-io/assay/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "assay",
		Usage:          "Ansible playbook validation client",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.ValidateCommand(),
			cmd.ReplayCommand(),
			cmd.InspectCommand(),
			cmd.StatsCommand(),
			cmd.ListCommand(),
			cmd.ProfilesCommand(),
			cmd.VersionCommand("", commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already handled the exit for cli.ExitCoder errors.
		// This branch handles unexpected errors that weren't wrapped.
		os.Exit(1)
	}
}

// exitErrHandler handles errors from the CLI, preserving exit codes from
// cli.Exit(). This keeps the validate/replay verdict codes intact all the
// way to the shell.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	// Check for ExitCoder (from cli.Exit), handles wrapped errors
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()

		// Only print if there's a real message (not just "exit status N")
		// cli.Exit("", N).Error() returns "exit status N", so skip those
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	// Unexpected error - print and exit with code 1
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
