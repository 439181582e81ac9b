package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/canv/cli/render"
	"github.com/justapithecus/canv/container"
	"github.com/justapithecus/canv/log"
)

// ValidateResult is one row of validate output.
type ValidateResult struct {
	Path   string `json:"path"`
	Kind   string `json:"kind"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// ValidateCommand returns the validate command.
func ValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Deep-validate Canv files (with their Ims) or Ims files",
		ArgsUsage: "<file.canv|file.ims>...",
		Flags:     ReadOnlyFlags(),
		Action:    validateAction,
	}
}

func validateAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("at least one .canv or .ims file is required", exitConfigError)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for validate command", 1)
	}

	logger := newLogger(c, nil)
	results := make([]ValidateResult, 0, c.NArg())
	invalid := 0
	for _, path := range c.Args().Slice() {
		res := validateFile(path, logger)
		if res.Status != "valid" {
			invalid++
		}
		results = append(results, res)
	}

	if err := r.Render(results); err != nil {
		return err
	}
	if invalid > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d files invalid", invalid, len(results)), exitRunFailed)
	}
	return nil
}

// validateFile picks the validator by extension.
func validateFile(path string, logger *log.Logger) ValidateResult {
	res := ValidateResult{Path: path, Status: "valid"}

	var err error
	switch filepath.Ext(path) {
	case container.CanvExt:
		res.Kind = "canv"
		err = container.ValidateCanv(path, logger)
	case container.ImsExt:
		res.Kind = "ims"
		err = container.ValidateIms(path, logger)
	default:
		res.Kind = "unknown"
		err = fmt.Errorf("unsupported extension %q (want %s or %s)", filepath.Ext(path), container.CanvExt, container.ImsExt)
	}
	if err != nil {
		res.Status = "invalid"
		res.Error = err.Error()
	}
	return res
}
