package cmd

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/canv/container"
	"github.com/justapithecus/canv/types"
)

// SliceCommand returns the slice command.
func SliceCommand() *cli.Command {
	return &cli.Command{
		Name:      "slice",
		Usage:     "Copy a frame range of a container pair into a new pair",
		ArgsUsage: "<source.canv> <target.canv>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "from",
				Usage: "First frame of the range (inclusive)",
			},
			&cli.IntFlag{
				Name:  "to",
				Usage: "End of the range (exclusive); 0 with --from 0 selects every frame",
			},
		},
		Action: sliceAction,
	}
}

func sliceAction(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.Exit("slice takes a source .canv and a target .canv", exitConfigError)
	}

	ctx, cancel := signalContext()
	defer cancel()

	opts := container.SliceOptions{
		Source:  c.Args().Get(0),
		Target:  c.Args().Get(1),
		From:    c.Int("from"),
		To:      c.Int("to"),
		Command: commandLine(),
		Tag:     types.Version,
	}
	if err := container.Slice(ctx, opts, newLogger(c, nil)); err != nil {
		if errors.Is(err, container.ErrValidation) {
			return cli.Exit(err.Error(), exitConfigError)
		}
		return fmt.Errorf("slice failed: %w", err)
	}
	return nil
}
