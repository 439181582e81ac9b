// Package archive provides the named-entry byte archive that backs Canv and
// Ims containers. Archives are zip files opened exclusively for reading or
// exclusively for writing.
package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zip"
)

// Mode selects how an archive is opened.
type Mode int

const (
	// ModeRead opens an existing archive read-only.
	ModeRead Mode = iota
	// ModeWrite creates (or truncates) an archive write-only.
	ModeWrite
)

func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	default:
		return "unknown"
	}
}

// ErrArchive is the sentinel wrapped by every ArchiveError.
var ErrArchive = errors.New("archive error")

// ErrEntryNotFound is returned by Read for a name the archive does not hold.
var ErrEntryNotFound = errors.New("entry not found")

// ArchiveError describes a failed archive operation.
type ArchiveError struct {
	Op   string
	Path string
	Err  error
}

func (e *ArchiveError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("archive %s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("archive %s %s", e.Op, e.Path)
}

func (e *ArchiveError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrArchive}
	}
	return []error{ErrArchive, e.Err}
}

// Archive is an open zip archive.
type Archive struct {
	path string
	mode Mode

	// read side
	reader  *zip.ReadCloser
	entries map[string]*zip.File

	// write side
	file    *os.File
	writer  *zip.Writer
	written map[string]struct{}

	closed bool
}

// Open opens path in the given mode. Read mode fails with an *ArchiveError
// if the file is missing or is not a valid zip archive. Malformed input
// never panics.
func Open(path string, mode Mode) (*Archive, error) {
	switch mode {
	case ModeRead:
		rc, err := zip.OpenReader(path)
		if err != nil {
			return nil, &ArchiveError{Op: "open", Path: path, Err: err}
		}
		entries := make(map[string]*zip.File, len(rc.File))
		for _, f := range rc.File {
			entries[f.Name] = f
		}
		return &Archive{path: path, mode: mode, reader: rc, entries: entries}, nil
	case ModeWrite:
		f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, &ArchiveError{Op: "create", Path: path, Err: err}
		}
		return &Archive{
			path:    path,
			mode:    mode,
			file:    f,
			writer:  zip.NewWriter(f),
			written: make(map[string]struct{}),
		}, nil
	default:
		return nil, &ArchiveError{Op: "open", Path: path, Err: fmt.Errorf("invalid mode %d", mode)}
	}
}

// Path returns the archive's file path.
func (a *Archive) Path() string { return a.path }

// Mode returns the mode the archive was opened with.
func (a *Archive) Mode() Mode { return a.mode }

// Names returns the entry names in sorted order. For a writable archive it
// returns the names written so far.
func (a *Archive) Names() []string {
	var names []string
	if a.mode == ModeRead {
		names = make([]string, 0, len(a.entries))
		for name := range a.entries {
			names = append(names, name)
		}
	} else {
		names = make([]string, 0, len(a.written))
		for name := range a.written {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Has reports whether the archive holds an entry called name.
func (a *Archive) Has(name string) bool {
	if a.mode == ModeRead {
		_, ok := a.entries[name]
		return ok
	}
	_, ok := a.written[name]
	return ok
}

// Read returns the full contents of entry name.
func (a *Archive) Read(name string) ([]byte, error) {
	if a.closed {
		return nil, &ArchiveError{Op: "read", Path: a.path, Err: os.ErrClosed}
	}
	if a.mode != ModeRead {
		return nil, &ArchiveError{Op: "read", Path: a.path, Err: fmt.Errorf("archive opened for %s", a.mode)}
	}
	f, ok := a.entries[name]
	if !ok {
		return nil, &ArchiveError{Op: "read", Path: a.path, Err: fmt.Errorf("%w: %s", ErrEntryNotFound, name)}
	}
	rc, err := f.Open()
	if err != nil {
		return nil, &ArchiveError{Op: "read", Path: a.path, Err: fmt.Errorf("%s: %w", name, err)}
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, &ArchiveError{Op: "read", Path: a.path, Err: fmt.Errorf("%s: %w", name, err)}
	}
	return data, nil
}

// Write stores data under name. Each name may be written once.
func (a *Archive) Write(name string, data []byte) error {
	if a.closed {
		return &ArchiveError{Op: "write", Path: a.path, Err: os.ErrClosed}
	}
	if a.mode != ModeWrite {
		return &ArchiveError{Op: "write", Path: a.path, Err: fmt.Errorf("archive opened for %s", a.mode)}
	}
	if _, dup := a.written[name]; dup {
		return &ArchiveError{Op: "write", Path: a.path, Err: fmt.Errorf("duplicate entry %s", name)}
	}
	w, err := a.writer.CreateHeader(&zip.FileHeader{Name: name, Method: methodFor(name)})
	if err != nil {
		return &ArchiveError{Op: "write", Path: a.path, Err: fmt.Errorf("%s: %w", name, err)}
	}
	if _, err := w.Write(data); err != nil {
		return &ArchiveError{Op: "write", Path: a.path, Err: fmt.Errorf("%s: %w", name, err)}
	}
	a.written[name] = struct{}{}
	return nil
}

// Close seals the archive. Close is idempotent.
func (a *Archive) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true

	if a.mode == ModeRead {
		if err := a.reader.Close(); err != nil {
			return &ArchiveError{Op: "close", Path: a.path, Err: err}
		}
		return nil
	}

	werr := a.writer.Close()
	ferr := a.file.Close()
	if err := errors.Join(werr, ferr); err != nil {
		return &ArchiveError{Op: "close", Path: a.path, Err: err}
	}
	return nil
}

// methodFor stores already-compressed image payloads and deflates the rest.
func methodFor(name string) uint16 {
	if strings.HasSuffix(name, ".jpeg") || strings.HasSuffix(name, ".jpg") {
		return zip.Store
	}
	return zip.Deflate
}

// EntryName returns the per-frame entry name for frame i of n: i zero-padded
// to the number of decimal digits in n, followed by suffix. Numeric and
// lexicographic order agree for every i < n.
func EntryName(i, n int, suffix string) string {
	width := len(strconv.Itoa(n))
	s := strconv.Itoa(i)
	if pad := width - len(s); pad > 0 {
		s = strings.Repeat("0", pad) + s
	}
	return s + suffix
}
