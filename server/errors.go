package server

import "errors"

var (
	// ErrProtocol is returned when the service answers with an unexpected
	// message kind.
	ErrProtocol = errors.New("server: unexpected message kind")
	// ErrEncoding is returned when a registration request cannot be built
	// because required camera fields are missing.
	ErrEncoding = errors.New("server: cannot encode registration request")
	// ErrStartup is returned when a managed service never publishes its
	// address.
	ErrStartup = errors.New("server: managed service did not start")
	// ErrClosed is returned by calls on a client after Shutdown.
	ErrClosed = errors.New("server: client is shut down")
)
