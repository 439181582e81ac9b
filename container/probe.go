package container

import (
	"github.com/justapithecus/canv/iox"
	"github.com/justapithecus/canv/log"
	"github.com/justapithecus/canv/types"
)

// ProbeReport summarizes a container pair.
type ProbeReport struct {
	Canv CanvSummary `json:"canv" yaml:"canv"`
	Ims  ImsSummary  `json:"ims" yaml:"ims"`
}

// CanvSummary describes the metadata half of a pair.
type CanvSummary struct {
	Path       string        `json:"path" yaml:"path"`
	Version    int           `json:"version" yaml:"version"`
	FrameCount int           `json:"frame_count" yaml:"frame_count"`
	Width      int           `json:"width" yaml:"width"`
	Height     int           `json:"height" yaml:"height"`
	History    types.History `json:"history" yaml:"history"`
}

// ImsSummary describes the image half of a pair. Width and Height come from
// the first frame and are zero when it cannot be decoded.
type ImsSummary struct {
	Path       string        `json:"path" yaml:"path"`
	Version    int           `json:"version" yaml:"version"`
	FrameCount int           `json:"frame_count" yaml:"frame_count"`
	Width      int           `json:"width" yaml:"width"`
	Height     int           `json:"height" yaml:"height"`
	History    types.History `json:"history" yaml:"history"`
}

// Probe opens the Canv at path and its companion Ims and reports their
// versions, frame counts, nominal and actual image sizes, and histories.
// The two frame counts are reported as found, even when they differ.
func Probe(path string, logger *log.Logger) (*ProbeReport, error) {
	canv, err := OpenCanv(path, false, logger)
	if err != nil {
		return nil, err
	}
	defer iox.DiscardClose(canv)

	ims, err := OpenIms(canv.ImsPath(), false, logger)
	if err != nil {
		return nil, err
	}
	defer iox.DiscardClose(ims)

	size := canv.ImageSize()
	report := &ProbeReport{
		Canv: CanvSummary{
			Path:       path,
			Version:    canv.Version(),
			FrameCount: canv.FrameCount(),
			Width:      size[0],
			Height:     size[1],
			History:    canv.History(),
		},
		Ims: ImsSummary{
			Path:       canv.ImsPath(),
			Version:    ims.Version(),
			FrameCount: ims.FrameCount(),
			History:    ims.History(),
		},
	}
	if cfg, err := ims.ReadConfig(0); err == nil {
		report.Ims.Width, report.Ims.Height = cfg.Width, cfg.Height
	} else {
		logger.Warn("cannot read first image", map[string]any{"path": canv.ImsPath(), "error": err.Error()})
	}
	return report, nil
}
