package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/canv/cli/render"
	"github.com/justapithecus/canv/cli/tui"
	"github.com/justapithecus/canv/container"
)

// ProbeCommand returns the probe command.
func ProbeCommand() *cli.Command {
	return &cli.Command{
		Name:      "probe",
		Usage:     "Show version, frame counts, image sizes and histories of a container pair",
		ArgsUsage: "<file.canv>",
		Flags:     TUIReadOnlyFlags(),
		Action:    probeAction,
	}
}

func probeAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("probe takes exactly one .canv file", exitConfigError)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	report, err := container.Probe(c.Args().First(), newLogger(c, nil))
	if err != nil {
		return fmt.Errorf("failed to probe %s: %w", c.Args().First(), err)
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewProbe, report)
	}
	return r.Render(report)
}
