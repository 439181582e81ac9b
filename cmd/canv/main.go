// Package main provides the canv CLI entrypoint.
//
// Usage:
//
//	canv <command> [options]
//
// Exit codes:
//   - 0: success
//   - 1: registration failed, or a container is invalid
//   - 2: registration service unreachable or failed to start
//   - 3: invalid arguments or configuration
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/canv/cli/cmd"
	"github.com/justapithecus/canv/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already handled the exit for cli.ExitCoder errors.
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:           "canv",
		Usage:          "Canonic video container tools and windowed frame registration",
		Version:        fmt.Sprintf("%s (format %d, commit: %s)", types.Version, types.FormatVersion, commit),
		ExitErrHandler: exitErrHandler,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log severity: debug, info, warning, error",
				Value:   "warning",
				EnvVars: []string{"CANV_LOG_LEVEL"},
			},
		},
		Commands: []*cli.Command{
			cmd.RegisterCommand(),
			cmd.ValidateCommand(),
			cmd.ProbeCommand(),
			cmd.SliceCommand(),
			cmd.StatsCommand(),
			cmd.VersionCommand(commit),
		},
	}
}

// exitErrHandler handles errors from the CLI, preserving exit codes from cli.Exit().
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	code, msg := exitStatus(err)
	if msg != "" {
		fmt.Fprintln(os.Stderr, msg)
	}
	os.Exit(code)
}

// exitStatus maps an action error to a process exit code and the message
// to print, if any.
func exitStatus(err error) (int, string) {
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		// cli.Exit("", N).Error() returns "exit status N", so skip those
		if msg == fmt.Sprintf("exit status %d", code) {
			msg = ""
		}
		return code, msg
	}
	return 1, fmt.Sprintf("Error: %v", err)
}
