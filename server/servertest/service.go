// Package servertest provides an in-process registration service for
// tests. It speaks the framed wire protocol over loopback TCP.
package servertest

import (
	"net"
	"slices"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/justapithecus/canv/ipc"
	"github.com/justapithecus/canv/types"
)

// HeartbeatKind is the envelope kind of the off-protocol messages sent
// when Service.Heartbeats is set.
const HeartbeatKind = "heartbeat"

// DefaultBatchWindow is how long the service waits for more registration
// requests before answering the ones it holds.
const DefaultBatchWindow = 20 * time.Millisecond

// Service is a fake registration service.
//
// Registration requests are held until no request arrives for BatchWindow,
// then answered. With Reverse set, each held batch is answered newest first,
// which models a service that completes frames out of order.
type Service struct {
	Branch      string
	Revision    string
	Reverse     bool
	BatchWindow time.Duration
	// Fail maps frame ids to a registration error string.
	Fail map[int64]string
	// Drop lists frame ids that are never answered.
	Drop map[int64]bool
	// Heartbeats is how many envelopes of HeartbeatKind are sent ahead of
	// the first answered batch of registration requests.
	Heartbeats int
	// Register builds the reply for a registration request. When nil the
	// request metadata is echoed back with the height raised by one.
	Register func(req *types.RegistrationRequest) types.Response

	ln      net.Listener
	wg      sync.WaitGroup
	mu      sync.Mutex
	conns   []net.Conn
	streams map[int64][]string
	nextID  int64
	reqs    []types.Request
	closed  bool
}

// New returns a service with default settings. Call Start to listen.
func New() *Service {
	return &Service{
		Branch:      "main",
		Revision:    "test",
		BatchWindow: DefaultBatchWindow,
		streams:     make(map[int64][]string),
	}
}

// Start listens on a loopback port and serves until Close.
func (s *Service) Start() error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	s.ln = ln
	s.wg.Add(1)
	go s.accept()
	return nil
}

// Addr returns the listen address as host:port.
func (s *Service) Addr() string { return s.ln.Addr().String() }

// Host returns the listen host.
func (s *Service) Host() string {
	host, _, _ := net.SplitHostPort(s.Addr())
	return host
}

// Port returns the listen port.
func (s *Service) Port() int { return s.ln.Addr().(*net.TCPAddr).Port }

// Requests returns every request received so far, in arrival order.
func (s *Service) Requests() []types.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.reqs)
}

// Registrations returns the registration requests received so far.
func (s *Service) Registrations() []*types.RegistrationRequest {
	var out []*types.RegistrationRequest
	for _, r := range s.Requests() {
		if reg, ok := r.(*types.RegistrationRequest); ok {
			out = append(out, reg)
		}
	}
	return out
}

// Close stops the listener and drops all connections.
func (s *Service) Close() error {
	s.mu.Lock()
	s.closed = true
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()

	err := s.ln.Close()
	for _, c := range conns {
		_ = c.Close()
	}
	s.wg.Wait()
	return err
}

func (s *Service) accept() {
	defer s.wg.Done()
	for {
		nc, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = nc.Close()
			return
		}
		s.conns = append(s.conns, nc)
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serve(nc)
	}
}

func (s *Service) serve(nc net.Conn) {
	defer s.wg.Done()
	window := s.BatchWindow
	if window <= 0 {
		window = DefaultBatchWindow
	}
	conn := ipc.NewConn(nc, window)

	var held []types.Response
	for {
		payload, err := conn.Receive()
		if err != nil {
			if ipc.IsTimeout(err) {
				if !s.flush(conn, held) {
					return
				}
				held = nil
				continue
			}
			return
		}

		req, err := ipc.DecodeRequest(payload)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.reqs = append(s.reqs, req)
		s.mu.Unlock()

		if reg, ok := req.(*types.RegistrationRequest); ok {
			if resp := s.register(reg); resp != nil {
				held = append(held, resp)
			}
			continue
		}
		if !s.send(conn, s.answer(req)) {
			return
		}
	}
}

func (s *Service) flush(conn *ipc.Conn, held []types.Response) bool {
	if len(held) > 0 {
		s.mu.Lock()
		beats := s.Heartbeats
		s.Heartbeats = 0
		s.mu.Unlock()
		for range beats {
			if !SendRaw(conn, HeartbeatKind) {
				return false
			}
		}
	}
	if s.Reverse {
		slices.Reverse(held)
	}
	for _, resp := range held {
		if !s.send(conn, resp) {
			return false
		}
	}
	return true
}

func (s *Service) send(conn *ipc.Conn, resp types.Response) bool {
	payload, err := ipc.EncodeResponse(resp)
	if err != nil {
		return false
	}
	return conn.Send(payload) == nil
}

func (s *Service) answer(req types.Request) types.Response {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch r := req.(type) {
	case *types.VersionRequest:
		return &types.VersionResponse{Branch: s.Branch, Revision: s.Revision}
	case *types.OpenStreamRequest:
		s.nextID++
		s.streams[s.nextID] = slices.Clone(r.ReferenceDatasets)
		return &types.OpenStreamResponse{StreamID: s.nextID}
	case *types.ListReferenceDatasetsRequest:
		return &types.ListReferenceDatasetsResponse{ReferenceDatasets: slices.Clone(s.streams[r.StreamID])}
	default:
		return &types.RegistrationError{ErrorString: "unsupported request " + string(req.Kind())}
	}
}

func (s *Service) register(req *types.RegistrationRequest) types.Response {
	if s.Drop[req.FrameID] {
		return nil
	}
	if msg, ok := s.Fail[req.FrameID]; ok {
		return &types.RegistrationError{FrameID: req.FrameID, ErrorString: msg}
	}
	if s.Register != nil {
		return s.Register(req)
	}
	md := req.Frame.Metadata
	md.Position.Height++
	return &types.RegistrationResult{FrameID: req.FrameID, FigureOfMerit: 0.5, Metadata: md}
}

// SendRaw sends an envelope of the given kind with an empty body. Kinds
// outside the protocol model a misbehaving peer.
func SendRaw(conn *ipc.Conn, kind string) bool {
	payload, err := msgpack.Marshal(&struct {
		Type string         `msgpack:"type"`
		Body map[string]any `msgpack:"body"`
	}{Type: kind, Body: map[string]any{}})
	if err != nil {
		return false
	}
	return conn.Send(payload) == nil
}
