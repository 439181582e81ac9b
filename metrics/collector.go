// Package metrics provides per-run metrics for registration runs.
//
// The Collector accumulates counters during a single run. It is a leaf
// package with no internal dependencies. An attached Prometheus sink mirrors
// every update live; the Snapshot is what run reports persist.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of a run's metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Registration pipeline
	FramesSubmitted  int64 `json:"frames_submitted"`
	FramesRegistered int64 `json:"frames_registered"`
	FramesFailed     int64 `json:"frames_failed"`
	EncodingFailures int64 `json:"encoding_failures"`
	FramesWritten    int64 `json:"frames_written"`
	MaxInFlight      int64 `json:"max_in_flight"`

	// Transport
	ReceiveTimeouts int64 `json:"receive_timeouts"`
	UnknownReplies  int64 `json:"unknown_replies"`

	// Lode / Storage
	LodeWriteSuccess int64 `json:"lode_write_success"`
	LodeWriteFailure int64 `json:"lode_write_failure"`

	// Dimensions (informational, set at construction)
	ServerMode     string `json:"server_mode"`
	StorageBackend string `json:"storage_backend"`
	RunID          string `json:"run_id"`
	Window         int64  `json:"window"`
}

// Collector accumulates metrics during a single run.
// Thread-safe via sync.Mutex. All methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	framesSubmitted  int64
	framesRegistered int64
	framesFailed     int64
	encodingFailures int64
	framesWritten    int64
	maxInFlight      int64

	receiveTimeouts int64
	unknownReplies  int64

	lodeWriteSuccess int64
	lodeWriteFailure int64

	// Dimensions
	serverMode     string
	storageBackend string
	runID          string
	window         int64

	sink *Prometheus
}

// NewCollector creates a Collector with dimension labels.
// serverMode is "remote" or "managed"; storageBackend may be empty when no
// run report is written.
func NewCollector(serverMode, storageBackend, runID string, window int) *Collector {
	return &Collector{
		serverMode:     serverMode,
		storageBackend: storageBackend,
		runID:          runID,
		window:         int64(window),
	}
}

// Attach mirrors every subsequent update into p.
func (c *Collector) Attach(p *Prometheus) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.sink = p
	c.mu.Unlock()
	p.setWindow(c.window)
}

// --- Registration pipeline ---

// IncFrameSubmitted records a registration request sent to the service.
func (c *Collector) IncFrameSubmitted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.framesSubmitted++
	sink := c.sink
	c.mu.Unlock()
	sink.incSubmitted()
}

// IncFrameRegistered records a successful registration with its figure of merit.
func (c *Collector) IncFrameRegistered(fom float64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.framesRegistered++
	sink := c.sink
	c.mu.Unlock()
	sink.incRegistered(fom)
}

// IncFrameFailed records a registration error reported by the service.
func (c *Collector) IncFrameFailed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.framesFailed++
	sink := c.sink
	c.mu.Unlock()
	sink.incFailed()
}

// IncEncodingFailure records a frame that could not be submitted.
func (c *Collector) IncEncodingFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.encodingFailures++
	sink := c.sink
	c.mu.Unlock()
	sink.incEncodingFailure()
}

// IncFrameWritten records one metadata entry appended to the output.
func (c *Collector) IncFrameWritten() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.framesWritten++
	sink := c.sink
	c.mu.Unlock()
	sink.incWritten()
}

// ObserveInFlight records the current in-flight count, keeping the maximum.
func (c *Collector) ObserveInFlight(n int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	if int64(n) > c.maxInFlight {
		c.maxInFlight = int64(n)
	}
	sink := c.sink
	c.mu.Unlock()
	sink.setInFlight(n)
}

// --- Transport ---

// IncReceiveTimeout records a result poll that timed out.
func (c *Collector) IncReceiveTimeout() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.receiveTimeouts++
	sink := c.sink
	c.mu.Unlock()
	sink.incTimeout()
}

// IncUnknownReply records a reply that matched no in-flight frame or had an
// unexpected kind.
func (c *Collector) IncUnknownReply() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.unknownReplies++
	sink := c.sink
	c.mu.Unlock()
	sink.incUnknown()
}

// --- Lode / Storage ---
// Lode counters are per-call, not per-record.

// IncLodeWriteSuccess records a successful Lode write operation.
func (c *Collector) IncLodeWriteSuccess() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.lodeWriteSuccess++
	c.mu.Unlock()
}

// IncLodeWriteFailure records a failed Lode write operation.
func (c *Collector) IncLodeWriteFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.lodeWriteFailure++
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		FramesSubmitted:  c.framesSubmitted,
		FramesRegistered: c.framesRegistered,
		FramesFailed:     c.framesFailed,
		EncodingFailures: c.encodingFailures,
		FramesWritten:    c.framesWritten,
		MaxInFlight:      c.maxInFlight,

		ReceiveTimeouts: c.receiveTimeouts,
		UnknownReplies:  c.unknownReplies,

		LodeWriteSuccess: c.lodeWriteSuccess,
		LodeWriteFailure: c.lodeWriteFailure,

		ServerMode:     c.serverMode,
		StorageBackend: c.storageBackend,
		RunID:          c.runID,
		Window:         c.window,
	}
}
