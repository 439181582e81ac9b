package container

import (
	"errors"
	"fmt"

	"github.com/justapithecus/canv/archive"
)

var (
	// ErrValidation reports a structural or type mismatch in an index,
	// history or metadata document, or a missing per-frame entry.
	ErrValidation = errors.New("validation failed")
	// ErrMissingCompanion reports that a Canv's companion Ims does not exist.
	ErrMissingCompanion = errors.New("missing companion")
	// ErrFrameCountMismatch reports a Canv/Ims pair with different frame counts.
	ErrFrameCountMismatch = errors.New("frame count mismatch")
	// ErrArchive reports a corrupt or unreadable archive.
	ErrArchive = archive.ErrArchive
	// ErrFull is returned by Append once frame_count frames are written.
	ErrFull = errors.New("container full")
	// ErrOutOfRange is returned by Read for an index outside [0, frame_count).
	ErrOutOfRange = errors.New("frame index out of range")
	// ErrNotWritable is returned by Append on a container opened for reading.
	ErrNotWritable = errors.New("container not writable")
	// ErrNotReadable is returned by Read on a container being created.
	ErrNotReadable = errors.New("container not readable")
	// ErrClosed is returned by any frame operation after Close.
	ErrClosed = errors.New("container closed")
)

// FrameReadError marks a Playback step whose metadata or image could not be
// read. Consumers must treat it as fatal for the run.
type FrameReadError struct {
	Index int
	Err   error
}

func (e *FrameReadError) Error() string {
	return fmt.Sprintf("playback frame %d: %v", e.Index, e.Err)
}

func (e *FrameReadError) Unwrap() error {
	return e.Err
}
