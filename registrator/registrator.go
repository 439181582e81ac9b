// Package registrator drives windowed registration of a frame sequence
// against the remote service and writes the registered metadata, in frame
// order, to an output Canv.
//
// Requests are submitted ahead of completion, up to a window of W frames.
// The service may answer in any order; answers that arrive before the
// oldest outstanding frame is done are buffered until it is. The in-flight
// set is touched only by the Run loop and needs no locking.
package registrator

import (
	"context"
	"errors"
	"fmt"
	"image"
	"iter"
	"time"

	"github.com/justapithecus/canv/container"
	"github.com/justapithecus/canv/ipc"
	"github.com/justapithecus/canv/log"
	"github.com/justapithecus/canv/metrics"
	"github.com/justapithecus/canv/server"
	"github.com/justapithecus/canv/types"
)

const (
	// DefaultWindow is the default bound on frames in flight.
	DefaultWindow = 10
	// DefaultMaxIdleTimeouts is how many consecutive result timeouts end a
	// run while frames are still in flight.
	DefaultMaxIdleTimeouts = 10
)

var (
	// ErrIdle is returned when the service stops answering. It also matches
	// ipc.ErrTimeout.
	ErrIdle = errors.New("registrator: service idle with frames in flight")
	// ErrPlayback is returned when a source frame cannot be read.
	ErrPlayback = errors.New("registrator: playback failed")
)

// Frame outcome statuses.
const (
	StatusRegistered  = "registered"
	StatusFailed      = "failed"
	StatusUnsubmitted = "unsubmitted"
)

// Service is the part of the server client the registrator drives.
// *server.Client implements it.
type Service interface {
	QueryVersion() (*server.VersionInfo, error)
	OpenStream(references []string) (int64, error)
	QueryReferences(streamID int64) ([]string, error)
	RequestRegistration(streamID, frameID int64, cam *types.Camera, img image.Image) error
	RegistrationResult() (*server.Result, error)
}

// Source yields frames in ascending order. *container.Playback implements it.
type Source interface {
	All() iter.Seq2[container.Frame, error]
}

// Output receives registered metadata in frame order. *container.Canv
// implements it.
type Output interface {
	Append(m *types.Metadata) error
}

// FrameOutcome describes what happened to one frame. Outcomes are reported
// in frame order, as each frame is written.
type FrameOutcome struct {
	FrameID int64   `json:"frame_id"`
	Status  string  `json:"status"`
	FOM     float64 `json:"fom"`
	Error   string  `json:"error,omitempty"`
}

// Options configures a Registrator.
type Options struct {
	// Window bounds frames in flight. Zero selects DefaultWindow.
	Window int
	// MaxIdleTimeouts bounds consecutive result timeouts. Zero selects
	// DefaultMaxIdleTimeouts.
	MaxIdleTimeouts int
	// Logger receives run diagnostics. Nil means no logging.
	Logger *log.Logger
	// Collector receives run metrics. May be nil.
	Collector *metrics.Collector
	// OnOutcome, when set, is called for every written frame.
	OnOutcome func(FrameOutcome)
}

// RunResult summarizes a completed run.
type RunResult struct {
	StreamID    int64
	References  []string
	Frames      int
	Registered  int
	Failed      int
	Unsubmitted int
	Duration    time.Duration
}

// Registrator registers frame sequences against one service.
type Registrator struct {
	svc       Service
	window    int
	maxIdle   int
	logger    *log.Logger
	collector *metrics.Collector
	onOutcome func(FrameOutcome)
	version   *server.VersionInfo
}

// New queries and logs the service version, then returns a Registrator.
func New(svc Service, opts Options) (*Registrator, error) {
	window := opts.Window
	if window == 0 {
		window = DefaultWindow
	}
	if window < 1 {
		return nil, fmt.Errorf("window must be at least 1, got %d", window)
	}
	maxIdle := opts.MaxIdleTimeouts
	if maxIdle <= 0 {
		maxIdle = DefaultMaxIdleTimeouts
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}

	version, err := svc.QueryVersion()
	if err != nil {
		return nil, fmt.Errorf("failed to query service version: %w", err)
	}
	logger.Info("registration service", map[string]any{
		"url":      version.URL,
		"branch":   version.Branch,
		"revision": version.Revision,
	})

	return &Registrator{
		svc:       svc,
		window:    window,
		maxIdle:   maxIdle,
		logger:    logger,
		collector: opts.Collector,
		onOutcome: opts.OnOutcome,
		version:   version,
	}, nil
}

// Version returns the service version queried by New.
func (r *Registrator) Version() *server.VersionInfo { return r.version }

// Window returns the in-flight bound.
func (r *Registrator) Window() int { return r.window }

// Run opens a stream against references, registers every frame of src and
// appends exactly one metadata entry per frame to out, in frame order.
// A frame the service fails to register keeps its source camera.
func (r *Registrator) Run(ctx context.Context, src Source, out Output, references []string) (*RunResult, error) {
	start := time.Now()

	streamID, err := r.svc.OpenStream(references)
	if err != nil {
		return nil, fmt.Errorf("failed to open registration stream: %w", err)
	}
	confirmed, err := r.svc.QueryReferences(streamID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stream references: %w", err)
	}
	r.logger.Info("registration stream opened", map[string]any{
		"stream_id":  streamID,
		"references": confirmed,
		"window":     r.window,
	})

	rr := &run{
		Registrator: r,
		streamID:    streamID,
		out:         out,
		pending:     make(map[int64]*entry, r.window),
		result:      &RunResult{StreamID: streamID, References: confirmed},
	}

	for frame, err := range src.All() {
		if err != nil {
			return rr.result, fmt.Errorf("%w: %w", ErrPlayback, err)
		}
		if err := ctx.Err(); err != nil {
			return rr.result, err
		}
		if err := rr.submit(frame); err != nil {
			return rr.result, err
		}
		for len(rr.order) >= r.window {
			if err := rr.drain(); err != nil {
				return rr.result, err
			}
		}
	}

	for len(rr.order) > 0 {
		if err := ctx.Err(); err != nil {
			return rr.result, err
		}
		if err := rr.drain(); err != nil {
			return rr.result, err
		}
	}

	rr.result.Duration = time.Since(start)
	r.logger.Info("registration run complete", map[string]any{
		"frames":      rr.result.Frames,
		"registered":  rr.result.Registered,
		"failed":      rr.result.Failed,
		"unsubmitted": rr.result.Unsubmitted,
		"duration_ms": rr.result.Duration.Milliseconds(),
	})
	return rr.result, nil
}

// entry is one frame between submission and write.
type entry struct {
	frameID  int64
	source   *types.Camera
	camera   *types.Camera
	received bool
	outcome  FrameOutcome
}

// run is the state of one Run call.
type run struct {
	*Registrator
	streamID int64
	out      Output

	// order holds in-flight entries by submission order; pending indexes
	// them by frame id.
	order   []*entry
	pending map[int64]*entry
	idle    int

	result *RunResult
}

// submit sends one frame and records its in-flight entry. A frame that
// cannot be encoded is recorded as already received, with no result.
func (rr *run) submit(frame container.Frame) error {
	id := int64(frame.Index)
	if frame.Metadata == nil {
		return fmt.Errorf("%w: frame %d has no metadata", ErrPlayback, id)
	}
	e := &entry{
		frameID: id,
		source:  frame.Metadata.Cam.Clone(),
		outcome: FrameOutcome{FrameID: id},
	}

	err := rr.svc.RequestRegistration(rr.streamID, id, &frame.Metadata.Cam, frame.Image)
	switch {
	case err == nil:
		rr.collector.IncFrameSubmitted()
	case errors.Is(err, server.ErrEncoding):
		rr.logger.Warn("frame not submitted for registration", map[string]any{
			"frame_id": id,
			"error":    err.Error(),
		})
		rr.collector.IncEncodingFailure()
		e.received = true
		e.outcome.Status = StatusUnsubmitted
		e.outcome.FOM = -1
		e.outcome.Error = err.Error()
	default:
		return fmt.Errorf("failed to submit frame %d: %w", id, err)
	}

	rr.order = append(rr.order, e)
	rr.pending[id] = e
	rr.collector.ObserveInFlight(len(rr.order))
	return nil
}

// drain writes any ready entries at the head, and otherwise waits for one
// result and then writes whatever became ready.
func (rr *run) drain() error {
	if err := rr.flush(); err != nil {
		return err
	}
	if len(rr.order) == 0 {
		return nil
	}

	res, err := rr.svc.RegistrationResult()
	switch {
	case err == nil:
		rr.idle = 0
		rr.mark(res)
	case ipc.IsTimeout(err):
		rr.idle++
		rr.collector.IncReceiveTimeout()
		rr.logger.Debug("no registration result within timeout", map[string]any{
			"in_flight": len(rr.order),
			"idle":      rr.idle,
		})
		if rr.idle >= rr.maxIdle {
			return fmt.Errorf("%w: %d consecutive timeouts, oldest frame %d: %w",
				ErrIdle, rr.idle, rr.order[0].frameID, err)
		}
	case errors.Is(err, server.ErrProtocol):
		rr.collector.IncUnknownReply()
		rr.logger.Warn("ignoring unexpected reply", map[string]any{
			"error": err.Error(),
		})
	default:
		return fmt.Errorf("failed to receive registration result: %w", err)
	}

	return rr.flush()
}

// mark records a result against its in-flight entry.
func (rr *run) mark(res *server.Result) {
	e, ok := rr.pending[res.FrameID]
	if !ok || e.received {
		rr.collector.IncUnknownReply()
		rr.logger.Warn("result for a frame not in flight", map[string]any{
			"frame_id": res.FrameID,
		})
		return
	}

	e.received = true
	e.outcome.FOM = res.FOM
	if res.Failed() {
		rr.collector.IncFrameFailed()
		rr.logger.Warn("frame registration failed", map[string]any{
			"frame_id": res.FrameID,
			"error":    res.Err,
		})
		e.outcome.Status = StatusFailed
		e.outcome.Error = res.Err
		return
	}

	rr.collector.IncFrameRegistered(res.FOM)
	rr.logger.Debug("frame registered", map[string]any{
		"frame_id": res.FrameID,
		"fom":      res.FOM,
	})
	e.camera = res.Camera
	e.outcome.Status = StatusRegistered
}

// flush writes the run of received entries at the head of the order.
func (rr *run) flush() error {
	for len(rr.order) > 0 && rr.order[0].received {
		e := rr.order[0]

		cam := e.camera
		if cam == nil {
			cam = e.source
		}
		if err := rr.out.Append(&types.Metadata{Cam: *cam}); err != nil {
			return fmt.Errorf("failed to write metadata for frame %d: %w", e.frameID, err)
		}

		rr.order[0] = nil
		rr.order = rr.order[1:]
		delete(rr.pending, e.frameID)
		rr.collector.IncFrameWritten()
		rr.collector.ObserveInFlight(len(rr.order))
		rr.count(e.outcome)
	}
	return nil
}

func (rr *run) count(o FrameOutcome) {
	rr.result.Frames++
	switch o.Status {
	case StatusRegistered:
		rr.result.Registered++
	case StatusFailed:
		rr.result.Failed++
	case StatusUnsubmitted:
		rr.result.Unsubmitted++
	}
	if rr.onOutcome != nil {
		rr.onOutcome(o)
	}
}
