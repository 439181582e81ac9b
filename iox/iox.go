// Package iox provides helpers for closing containers, archives and
// connections on every exit path.
package iox

import (
	"errors"
	"io"
)

// DiscardClose closes c and discards the error.
// Use in defer statements on read-only handles where close errors are
// unactionable:
//
//	defer iox.DiscardClose(canv)
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc returns a cleanup function that closes c.
// Designed for t.Cleanup registration:
//
//	t.Cleanup(iox.CloseFunc(client))
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// CloseInto closes c and joins its error into *errp. Use with a named error
// return so a writable container's flush failure is never lost:
//
//	defer iox.CloseInto(&err, out)
func CloseInto(errp *error, c io.Closer) {
	if cerr := c.Close(); cerr != nil {
		*errp = errors.Join(*errp, cerr)
	}
}

// DiscardErr calls fn and discards the returned error.
// Use for non-Close cleanup calls (e.g. Shutdown) where errors are
// unactionable.
func DiscardErr(fn func() error) { _ = fn() }
