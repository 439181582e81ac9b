package container

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/justapithecus/canv/log"
	"github.com/justapithecus/canv/types"
)

// Canv is the metadata half of a container pair.
type Canv struct {
	base
	index     types.CanvIndex
	companion string
}

// OpenCanv opens a Canv read-only. The companion path is resolved relative
// to the Canv's directory and must name an existing file. With deep set,
// every per-frame metadata entry must be present. Every problem found is
// logged and returned joined; no partially valid Canv is returned.
func OpenCanv(path string, deep bool, logger *log.Logger) (*Canv, error) {
	c := &Canv{}
	b, problems, err := openReadable(path, deep, MetadataSuffix, IsCanvIndex, &c.index, logger)
	if err != nil {
		logger.Warn("cannot open canv", map[string]any{"path": path, "error": err.Error()})
		return nil, err
	}

	if c.index.CompanionPath != "" && isCompanionPath(c.index.CompanionPath) {
		c.companion = filepath.Join(filepath.Dir(path), c.index.CompanionPath)
		if info, statErr := os.Stat(c.companion); statErr != nil || !info.Mode().IsRegular() {
			problems = append(problems, fmt.Errorf("%w: ims path %s is invalid", ErrMissingCompanion, c.companion))
		}
	}

	if len(problems) > 0 {
		_ = b.arc.Close()
		return nil, reject(logger, path, problems)
	}
	c.base = *b
	return c, nil
}

// CreateCanv creates a writable Canv at path. companion is the Ims path
// relative to the Canv's directory. history is copied, so the caller's
// (usually inherited from a source container) is left untouched.
func CreateCanv(path string, frameCount int, imageSize [2]int, companion string, history types.History, logger *log.Logger) (*Canv, error) {
	if imageSize[0] <= 0 || imageSize[1] <= 0 {
		return nil, fmt.Errorf("%w: image size %dx%d must be positive", ErrValidation, imageSize[0], imageSize[1])
	}
	if !isCompanionPath(companion) {
		return nil, fmt.Errorf("%w: companion path %q must be relative and end in %s", ErrValidation, companion, ImsExt)
	}
	b, err := newWritable(path, frameCount, history, logger)
	if err != nil {
		return nil, err
	}
	return &Canv{
		base: *b,
		index: types.CanvIndex{
			Version:       types.FormatVersion,
			FrameCount:    frameCount,
			ImageSize:     imageSize,
			CompanionPath: companion,
		},
		companion: filepath.Join(filepath.Dir(path), companion),
	}, nil
}

// ImageSize returns the nominal (width, height) of the frames.
func (c *Canv) ImageSize() [2]int { return c.index.ImageSize }

// CompanionPath returns the companion path as stored in the index.
func (c *Canv) CompanionPath() string { return c.index.CompanionPath }

// ImsPath returns the companion Ims path resolved against the Canv's
// directory.
func (c *Canv) ImsPath() string { return c.companion }

// Append writes m as the next frame's metadata. It fails with ErrFull once
// FrameCount frames have been written, leaving the container unchanged.
func (c *Canv) Append(m *types.Metadata) error {
	if m == nil {
		return fmt.Errorf("%w: nil metadata", ErrValidation)
	}
	if err := m.Cam.Complete(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	return c.appendEntry(MetadataSuffix, data)
}

// AppendRaw writes an already encoded metadata document as the next frame.
func (c *Canv) AppendRaw(data []byte) error {
	doc, err := decodeDocument(data)
	if err != nil || !IsMetadata(doc) {
		return fmt.Errorf("%w: frame %d metadata does not meet requirements", ErrValidation, c.cursor)
	}
	return c.appendEntry(MetadataSuffix, data)
}

// Read returns the metadata of frame i.
func (c *Canv) Read(i int) (*types.Metadata, error) {
	data, err := c.ReadRaw(i)
	if err != nil {
		return nil, err
	}
	doc, err := decodeDocument(data)
	if err != nil || !IsMetadata(doc) {
		return nil, fmt.Errorf("%w: frame %d metadata in %s does not meet requirements", ErrValidation, i, c.path)
	}
	var m types.Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: frame %d metadata in %s: %v", ErrValidation, i, c.path, err)
	}
	return &m, nil
}

// ReadRaw returns the encoded metadata document of frame i.
func (c *Canv) ReadRaw(i int) ([]byte, error) {
	return c.readEntry(i, MetadataSuffix)
}

// Close flushes the index and history of a writable Canv and seals the
// archive. Only the first call has any effect.
func (c *Canv) Close() error {
	return c.close(&c.index)
}
