package container

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/justapithecus/canv/iox"
	"github.com/justapithecus/canv/log"
)

// SliceOptions configures Slice.
type SliceOptions struct {
	// Source is the Canv to slice; its companion Ims is sliced alongside.
	Source string
	// Target is the new Canv path. It must end in .canv; the new Ims is
	// written next to it with the .ims extension.
	Target string
	// From and To select frames [From, To). Both zero selects every frame.
	From, To int
	// Command and Tag are appended to both inherited histories.
	Command string
	Tag     string
}

// Slice copies a frame range of a container pair into a new pair. Frame
// bytes are copied as stored. Histories are inherited from the sources and
// extended with opts.Command. On failure the partial target pair is removed.
func Slice(ctx context.Context, opts SliceOptions, logger *log.Logger) (err error) {
	if filepath.Ext(opts.Target) != CanvExt {
		return fmt.Errorf("%w: target %s must have the suffix %s", ErrValidation, opts.Target, CanvExt)
	}
	targetIms := strings.TrimSuffix(opts.Target, CanvExt) + ImsExt
	for _, p := range []string{opts.Target, targetIms} {
		if _, statErr := os.Stat(p); statErr == nil {
			return fmt.Errorf("target %s already exists", p)
		}
	}

	src, err := OpenPlayback(opts.Source, logger)
	if err != nil {
		return err
	}
	defer iox.DiscardClose(src)

	from, to := opts.From, opts.To
	if from == 0 && to == 0 {
		to = src.FrameCount()
	}
	if from < 0 || to < 0 || from > to {
		return fmt.Errorf("%w: range start must be <= range end and range cannot be negative", ErrValidation)
	}
	if to > src.FrameCount() {
		return fmt.Errorf("%w: range end %d is beyond the %d source frames", ErrValidation, to, src.FrameCount())
	}
	n := to - from
	if n == 0 {
		return fmt.Errorf("%w: the number of frames must be at least one", ErrValidation)
	}

	defer func() {
		if err != nil {
			_ = os.Remove(opts.Target)
			_ = os.Remove(targetIms)
		}
	}()

	canvHistory := src.Canv().History()
	imsHistory := src.Ims().History()
	if opts.Command != "" {
		canvHistory.Append(opts.Command, opts.Tag)
		imsHistory.Append(opts.Command, opts.Tag)
	}

	outCanv, err := CreateCanv(opts.Target, n, src.Canv().ImageSize(), filepath.Base(targetIms), canvHistory, logger)
	if err != nil {
		return err
	}
	defer iox.CloseInto(&err, outCanv)

	outIms, err := CreateIms(targetIms, n, imsHistory, logger)
	if err != nil {
		return err
	}
	defer iox.CloseInto(&err, outIms)

	for i := from; i < to; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		meta, rerr := src.Canv().ReadRaw(i)
		if rerr != nil {
			return &FrameReadError{Index: i, Err: rerr}
		}
		img, rerr := src.Ims().ReadEncoded(i)
		if rerr != nil {
			return &FrameReadError{Index: i, Err: rerr}
		}
		if err := outCanv.AppendRaw(meta); err != nil {
			return err
		}
		if err := outIms.AppendEncoded(img); err != nil {
			return err
		}
	}

	logger.Info("container sliced", map[string]any{
		"source": opts.Source,
		"target": opts.Target,
		"from":   from,
		"to":     to,
	})
	return nil
}
