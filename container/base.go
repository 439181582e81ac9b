// Package container implements the canonic video container pair: a Canv
// holding per-frame camera metadata and its companion Ims holding per-frame
// JPEG images. Both are zip archives with an index.json, a proc.json command
// history and one entry per frame.
//
// Containers are opened either for reading or for writing, never both.
// Writable containers are append-only and bounded by the frame count fixed
// at creation; Close writes the index and history exactly once.
package container

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/justapithecus/canv/archive"
	"github.com/justapithecus/canv/log"
	"github.com/justapithecus/canv/types"
)

// Archive layout.
const (
	IndexEntry = "index.json"
	ProcEntry  = "proc.json"

	CanvExt = ".canv"
	ImsExt  = ".ims"

	MetadataSuffix = ".json"
	ImageSuffix    = ".jpeg"

	// MinFormatVersion is the oldest index version accepted on open.
	MinFormatVersion = types.MinFormatVersion
)

// Container is the lifecycle shared by Canv and Ims.
type Container interface {
	Path() string
	Version() int
	FrameCount() int
	History() types.History
	AppendCommand(cmd, tag string)
	Close() error
}

var (
	_ Container = (*Canv)(nil)
	_ Container = (*Ims)(nil)
)

// base owns one archive handle plus the in-memory history and write cursor.
// The concrete containers own their typed index and hand it to base for
// serialization on close.
type base struct {
	path       string
	arc        *archive.Archive
	writable   bool
	version    int
	frameCount int
	history    types.History
	cursor     int
	closed     bool
	logger     *log.Logger
}

func (b *base) Path() string { return b.path }

// Version returns the index format version.
func (b *base) Version() int { return b.version }

// FrameCount returns the number of frames fixed at creation.
func (b *base) FrameCount() int { return b.frameCount }

// History returns a copy of the command history.
func (b *base) History() types.History { return b.history.Clone() }

// AppendCommand records cmd under tag, merging into an existing record with
// the same tag. The change is persisted on Close for writable containers.
func (b *base) AppendCommand(cmd, tag string) {
	b.history.Append(cmd, tag)
}

// Written returns how many frames have been appended.
func (b *base) Written() int { return b.cursor }

func (b *base) appendEntry(suffix string, data []byte) error {
	if b.closed {
		return ErrClosed
	}
	if !b.writable {
		return ErrNotWritable
	}
	if b.cursor >= b.frameCount {
		return fmt.Errorf("%w: %s holds %d frames", ErrFull, b.path, b.frameCount)
	}
	if err := b.arc.Write(archive.EntryName(b.cursor, b.frameCount, suffix), data); err != nil {
		return err
	}
	b.cursor++
	return nil
}

func (b *base) readEntry(i int, suffix string) ([]byte, error) {
	if b.closed {
		return nil, ErrClosed
	}
	if b.writable {
		return nil, ErrNotReadable
	}
	if i < 0 || i >= b.frameCount {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrOutOfRange, i, b.frameCount)
	}
	return b.arc.Read(archive.EntryName(i, b.frameCount, suffix))
}

// close seals the archive, first writing index and history when writable.
// Only the first call does any work.
func (b *base) close(index any) error {
	if b.closed {
		return nil
	}
	b.closed = true

	var errs []error
	if b.writable {
		if b.cursor < b.frameCount {
			b.logger.Warn("container closed before all frames were written", map[string]any{
				"path":        b.path,
				"written":     b.cursor,
				"frame_count": b.frameCount,
			})
		}
		errs = append(errs, writeJSON(b.arc, IndexEntry, index))
		history := b.history
		if history == nil {
			history = types.History{}
		}
		errs = append(errs, writeJSON(b.arc, ProcEntry, history))
	}
	errs = append(errs, b.arc.Close())
	return errors.Join(errs...)
}

func writeJSON(arc *archive.Archive, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return arc.Write(name, data)
}

// newWritable creates the archive for a fresh container.
func newWritable(path string, frameCount int, history types.History, logger *log.Logger) (*base, error) {
	if frameCount <= 0 {
		return nil, fmt.Errorf("%w: frame count %d must be positive", ErrValidation, frameCount)
	}
	arc, err := archive.Open(path, archive.ModeWrite)
	if err != nil {
		return nil, err
	}
	return &base{
		path:       path,
		arc:        arc,
		writable:   true,
		version:    types.FormatVersion,
		frameCount: frameCount,
		history:    history.Clone(),
		logger:     logger,
	}, nil
}

// openReadable opens path read-only and validates index.json, proc.json and,
// when deep is set, the presence of every per-frame entry. isIndex checks the
// generic index document; on success it is decoded into index. All problems
// are collected and returned together with the still-open base, so callers
// can add their own checks before deciding; the caller closes on failure.
func openReadable(path string, deep bool, suffix string, isIndex func(any) bool, index any, logger *log.Logger) (*base, []error, error) {
	arc, err := archive.Open(path, archive.ModeRead)
	if err != nil {
		return nil, nil, err
	}
	b := &base{path: path, arc: arc, logger: logger}

	var problems []error
	indexOK := false

	raw, err := arc.Read(IndexEntry)
	if err != nil {
		_ = arc.Close()
		return nil, nil, err
	}
	doc, err := decodeDocument(raw)
	switch {
	case err != nil:
		problems = append(problems, fmt.Errorf("%w: %s in %s: %v", ErrValidation, IndexEntry, path, err))
	case !isIndex(doc):
		problems = append(problems, fmt.Errorf("%w: %s in %s does not meet requirements", ErrValidation, IndexEntry, path))
	default:
		if err := json.Unmarshal(raw, index); err != nil {
			problems = append(problems, fmt.Errorf("%w: %s in %s: %v", ErrValidation, IndexEntry, path, err))
		} else {
			indexOK = true
			obj := doc.(map[string]any)
			v, _ := asInt(obj["version"])
			n, _ := asInt(obj["frame-count"])
			b.version, b.frameCount = int(v), int(n)
		}
	}

	raw, err = arc.Read(ProcEntry)
	if err != nil {
		_ = arc.Close()
		return nil, nil, err
	}
	doc, err = decodeDocument(raw)
	if err != nil || !IsProc(doc) {
		problems = append(problems, fmt.Errorf("%w: %s in %s does not meet requirements", ErrValidation, ProcEntry, path))
	} else if err := json.Unmarshal(raw, &b.history); err != nil {
		problems = append(problems, fmt.Errorf("%w: %s in %s: %v", ErrValidation, ProcEntry, path, err))
	}
	if b.history == nil {
		b.history = types.History{}
	}

	if deep && indexOK {
		if held := len(arc.Names()); b.frameCount > held {
			problems = append(problems, fmt.Errorf("%w: %s declares %d frames but holds only %d entries",
				ErrValidation, path, b.frameCount, held))
			return b, problems, nil
		}
		for i := range b.frameCount {
			name := archive.EntryName(i, b.frameCount, suffix)
			if !arc.Has(name) {
				problems = append(problems, fmt.Errorf("%w: entry %s is missing in %s", ErrValidation, name, path))
			}
		}
	}

	return b, problems, nil
}

// reject logs every validation problem and joins them into one error.
func reject(logger *log.Logger, path string, problems []error) error {
	for _, p := range problems {
		logger.Warn("container validation failed", map[string]any{
			"path":    path,
			"problem": p.Error(),
		})
	}
	return errors.Join(problems...)
}
