package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/canv/cli/render"
	"github.com/justapithecus/canv/cli/tui"
	"github.com/justapithecus/canv/lode"
)

// statsReadTimeout bounds the whole dataset scan.
const statsReadTimeout = 30 * time.Second

// StatsCommand returns the stats command. It reads the latest run summary
// written by register back from the run report dataset.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show the latest registration run summary from the run report dataset",
		Flags: append(append(TUIReadOnlyFlags(), StorageFlags()...),
			&cli.StringFlag{Name: "run-id", Usage: "Read the summary of a specific run ID"},
			&cli.StringFlag{Name: "source", Usage: "Filter by source partition (input container name)"},
		),
		Action: statsAction,
	}
}

func statsAction(c *cli.Context) error {
	storage := resolveStorage(c, nil)
	if !storage.enabled() {
		return cli.Exit("--storage-backend and --storage-path are required", exitConfigError)
	}
	if err := storage.validate(); err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context, statsReadTimeout)
	defer cancel()

	ds, err := storage.buildReadDataset(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage reader: %w", err)
	}

	record, err := lode.QueryLatestSummary(ctx, ds, c.String("run-id"), c.String("source"))
	if err != nil {
		if errors.Is(err, lode.ErrNoSummaryFound) {
			return cli.Exit(err.Error(), exitRunFailed)
		}
		return fmt.Errorf("failed to read run summary: %w", err)
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewStats, record)
	}
	return r.Render(record)
}
