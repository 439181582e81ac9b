package container

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/justapithecus/canv/log"
	"github.com/justapithecus/canv/types"
)

// JPEGQuality is the encoder quality used by Ims.Append.
const JPEGQuality = 75

// Ims is the image half of a container pair.
type Ims struct {
	base
	index types.ImsIndex
}

// OpenIms opens an Ims read-only. With deep set, every per-frame image entry
// must be present.
func OpenIms(path string, deep bool, logger *log.Logger) (*Ims, error) {
	m := &Ims{}
	b, problems, err := openReadable(path, deep, ImageSuffix, IsImsIndex, &m.index, logger)
	if err != nil {
		logger.Warn("cannot open ims", map[string]any{"path": path, "error": err.Error()})
		return nil, err
	}
	if len(problems) > 0 {
		_ = b.arc.Close()
		return nil, reject(logger, path, problems)
	}
	m.base = *b
	return m, nil
}

// CreateIms creates a writable Ims at path.
func CreateIms(path string, frameCount int, history types.History, logger *log.Logger) (*Ims, error) {
	b, err := newWritable(path, frameCount, history, logger)
	if err != nil {
		return nil, err
	}
	return &Ims{
		base: *b,
		index: types.ImsIndex{
			Version:    types.FormatVersion,
			FrameCount: frameCount,
		},
	}, nil
}

// Append JPEG-encodes img as the next frame.
func (m *Ims) Append(img image.Image) error {
	if img == nil {
		return fmt.Errorf("%w: nil image", ErrValidation)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return fmt.Errorf("encode frame %d: %w", m.cursor, err)
	}
	return m.appendEntry(ImageSuffix, buf.Bytes())
}

// AppendEncoded writes already encoded JPEG bytes as the next frame.
func (m *Ims) AppendEncoded(data []byte) error {
	if _, err := jpeg.DecodeConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("%w: frame %d is not a jpeg image: %v", ErrValidation, m.cursor, err)
	}
	return m.appendEntry(ImageSuffix, data)
}

// Read decodes the image of frame i.
func (m *Ims) Read(i int) (image.Image, error) {
	data, err := m.ReadEncoded(i)
	if err != nil {
		return nil, err
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode frame %d in %s: %w", i, m.path, err)
	}
	return img, nil
}

// ReadEncoded returns the encoded JPEG bytes of frame i.
func (m *Ims) ReadEncoded(i int) ([]byte, error) {
	return m.readEntry(i, ImageSuffix)
}

// ReadConfig returns the dimensions of frame i without decoding pixels.
func (m *Ims) ReadConfig(i int) (image.Config, error) {
	data, err := m.ReadEncoded(i)
	if err != nil {
		return image.Config{}, err
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return image.Config{}, fmt.Errorf("decode frame %d in %s: %w", i, m.path, err)
	}
	return cfg, nil
}

// Close flushes the index and history of a writable Ims and seals the
// archive. Only the first call has any effect.
func (m *Ims) Close() error {
	return m.close(&m.index)
}
