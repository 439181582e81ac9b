package lode

import (
	"context"
	"errors"
	"sync"

	"github.com/justapithecus/canv/log"
	"github.com/justapithecus/canv/metrics"
	"github.com/justapithecus/canv/registrator"
)

// DefaultBatchSize is the number of outcomes written per snapshot.
const DefaultBatchSize = 500

// InstrumentedClient wraps a Client and records write metrics.
// Each WriteOutcomes/WriteSummary call increments lode_write_success or
// lode_write_failure on the metrics collector.
type InstrumentedClient struct {
	inner     Client
	collector *metrics.Collector
}

// NewInstrumentedClient wraps a client with metrics instrumentation.
func NewInstrumentedClient(inner Client, collector *metrics.Collector) *InstrumentedClient {
	return &InstrumentedClient{inner: inner, collector: collector}
}

// WriteOutcomes delegates to the inner client and records success or failure.
func (c *InstrumentedClient) WriteOutcomes(ctx context.Context, outcomes []registrator.FrameOutcome) error {
	return c.observe(c.inner.WriteOutcomes(ctx, outcomes))
}

// WriteSummary delegates to the inner client and records success or failure.
func (c *InstrumentedClient) WriteSummary(ctx context.Context, summary RunSummary) error {
	return c.observe(c.inner.WriteSummary(ctx, summary))
}

func (c *InstrumentedClient) observe(err error) error {
	if err != nil {
		c.collector.IncLodeWriteFailure()
	} else {
		c.collector.IncLodeWriteSuccess()
	}
	return err
}

// Close delegates to the inner client.
func (c *InstrumentedClient) Close() error {
	return c.inner.Close()
}

// Verify InstrumentedClient implements Client.
var _ Client = (*InstrumentedClient)(nil)

// Report persists the frame outcomes of one run and, when the run
// finishes, its summary.
//
// Record is safe to pass as registrator.Options.OnOutcome. It buffers at
// most one batch: every BatchSize outcomes the batch is written, so memory
// stays bounded for any frame count. After a failed outcome write the
// remaining outcomes are dropped and the failure is returned by Finish.
type Report struct {
	ctx       context.Context
	client    Client
	logger    *log.Logger
	batchSize int

	mu       sync.Mutex
	outcomes []registrator.FrameOutcome
	written  int
	dropped  int
	err      error
	finished bool
}

// ReportOptions configures a Report.
type ReportOptions struct {
	// BatchSize is the number of outcomes per write (default DefaultBatchSize).
	BatchSize int
	Logger    *log.Logger
}

// NewReport creates a report writing through client. Outcome batches
// written from Record use ctx.
func NewReport(ctx context.Context, client Client, opts ReportOptions) *Report {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	return &Report{
		ctx:       ctx,
		client:    client,
		logger:    opts.Logger,
		batchSize: opts.BatchSize,
		outcomes:  make([]registrator.FrameOutcome, 0, opts.BatchSize),
	}
}

// Record adds one frame outcome and writes the batch once it is full.
// Outcomes recorded after Finish are dropped.
func (r *Report) Record(o registrator.FrameOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return
	}
	if r.err != nil {
		r.dropped++
		return
	}
	r.outcomes = append(r.outcomes, o)
	if len(r.outcomes) >= r.batchSize {
		r.flushLocked(r.ctx)
	}
}

// Len returns the number of outcomes buffered and not yet written.
func (r *Report) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.outcomes)
}

// flushLocked writes the buffered outcomes. r.mu must be held.
func (r *Report) flushLocked(ctx context.Context) {
	if len(r.outcomes) == 0 || r.err != nil {
		return
	}
	if err := r.client.WriteOutcomes(ctx, r.outcomes); err != nil {
		r.logger.Warn("frame outcome write failed", map[string]any{
			"first_frame": r.outcomes[0].FrameID,
			"count":       len(r.outcomes),
			"error":       err.Error(),
		})
		r.err = err
		r.dropped += len(r.outcomes)
	} else {
		r.written += len(r.outcomes)
	}
	r.outcomes = r.outcomes[:0]
}

// Finish writes the last partial batch followed by the summary. The summary
// is written even when an outcome batch failed, so a run always leaves a
// summary when storage allows it. Finish is single-shot; later calls
// return nil.
func (r *Report) Finish(ctx context.Context, summary RunSummary) error {
	r.mu.Lock()
	if r.finished {
		r.mu.Unlock()
		return nil
	}
	r.finished = true
	r.flushLocked(ctx)
	outcomeErr, written, dropped := r.err, r.written, r.dropped
	r.outcomes = nil
	r.mu.Unlock()

	var errs []error
	if outcomeErr != nil {
		errs = append(errs, outcomeErr)
	}
	if err := r.client.WriteSummary(ctx, summary); err != nil {
		r.logger.Warn("run summary write failed", map[string]any{
			"error": err.Error(),
		})
		errs = append(errs, err)
	} else {
		r.logger.Debug("run report written", map[string]any{
			"outcomes": written,
			"dropped":  dropped,
			"status":   summary.Status,
		})
	}

	return errors.Join(errs...)
}
