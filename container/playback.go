package container

import (
	"errors"
	"fmt"
	"image"
	"io"
	"iter"

	"github.com/justapithecus/canv/log"
	"github.com/justapithecus/canv/types"
)

// Frame is one aligned (metadata, image) pair.
type Frame struct {
	Index    int
	Metadata *types.Metadata
	Image    image.Image
}

// Playback reads a Canv and its Ims in lockstep. It is a finite, restartable
// sequence of FrameCount frames.
type Playback struct {
	canv   *Canv
	ims    *Ims
	cursor int
	owned  bool
}

// NewPlayback pairs two already open containers. The containers stay owned
// by the caller; Close on the returned Playback does not close them.
func NewPlayback(canv *Canv, ims *Ims) (*Playback, error) {
	if canv == nil || ims == nil {
		return nil, errors.New("playback needs both a canv and an ims")
	}
	if canv.FrameCount() != ims.FrameCount() {
		return nil, fmt.Errorf("%w: %s has %d frames, %s has %d",
			ErrFrameCountMismatch, canv.Path(), canv.FrameCount(), ims.Path(), ims.FrameCount())
	}
	return &Playback{canv: canv, ims: ims}, nil
}

// OpenPlayback opens the Canv at canvPath and its companion Ims. The
// returned Playback owns both and closes them on Close.
func OpenPlayback(canvPath string, logger *log.Logger) (*Playback, error) {
	canv, err := OpenCanv(canvPath, false, logger)
	if err != nil {
		return nil, err
	}
	ims, err := OpenIms(canv.ImsPath(), false, logger)
	if err != nil {
		_ = canv.Close()
		return nil, err
	}
	p, err := NewPlayback(canv, ims)
	if err != nil {
		logger.Warn("cannot play back container pair", map[string]any{
			"canv":  canvPath,
			"ims":   canv.ImsPath(),
			"error": err.Error(),
		})
		_ = canv.Close()
		_ = ims.Close()
		return nil, err
	}
	p.owned = true
	return p, nil
}

// Canv returns the metadata container.
func (p *Playback) Canv() *Canv { return p.canv }

// Ims returns the image container.
func (p *Playback) Ims() *Ims { return p.ims }

// FrameCount returns the length of the sequence.
func (p *Playback) FrameCount() int { return p.canv.FrameCount() }

// Reset rewinds the sequence to frame 0.
func (p *Playback) Reset() { p.cursor = 0 }

// Next returns the frame at the cursor and advances it. At the end of the
// sequence it returns io.EOF. A frame whose metadata or image cannot be read
// yields a *FrameReadError; the cursor still advances.
func (p *Playback) Next() (Frame, error) {
	if p.cursor >= p.canv.FrameCount() {
		return Frame{}, io.EOF
	}
	i := p.cursor
	p.cursor++

	meta, err := p.canv.Read(i)
	if err != nil {
		return Frame{}, &FrameReadError{Index: i, Err: err}
	}
	img, err := p.ims.Read(i)
	if err != nil {
		return Frame{}, &FrameReadError{Index: i, Err: err}
	}
	return Frame{Index: i, Metadata: meta, Image: img}, nil
}

// All restarts the sequence and yields every frame in order. Iteration
// stops after the first failed frame, which is yielded with its error.
func (p *Playback) All() iter.Seq2[Frame, error] {
	return func(yield func(Frame, error) bool) {
		p.Reset()
		for p.cursor < p.canv.FrameCount() {
			f, err := p.Next()
			if !yield(f, err) || err != nil {
				return
			}
		}
	}
}

// Close closes both containers when the Playback opened them itself.
func (p *Playback) Close() error {
	if !p.owned {
		return nil
	}
	return errors.Join(p.canv.Close(), p.ims.Close())
}
