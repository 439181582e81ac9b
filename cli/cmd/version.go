package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/canv/cli/render"
	"github.com/justapithecus/canv/types"
)

// VersionResponse is the response for the version command.
type VersionResponse struct {
	Version       string `json:"version"`
	FormatVersion int    `json:"format_version"`
	Commit        string `json:"commit"`
}

// VersionCommand returns the version command. It reports the tool version
// and the container format version written into new containers.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  ReadOnlyFlags(),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := render.NewRenderer(c)
		if err != nil {
			return err
		}

		// TUI not supported for version command
		if c.Bool("tui") {
			return cli.Exit("--tui is not supported for version command", 1)
		}

		return r.Render(VersionResponse{
			Version:       types.Version,
			FormatVersion: types.FormatVersion,
			Commit:        commit,
		})
	}
}
