package lode

import (
	"context"
	"errors"
	"testing"

	"github.com/justapithecus/canv/registrator"
)

// recordingClient captures writes in memory.
type recordingClient struct {
	batches    [][]registrator.FrameOutcome
	summaries  []RunSummary
	outcomeErr error
	summaryErr error
}

func (c *recordingClient) WriteOutcomes(_ context.Context, outcomes []registrator.FrameOutcome) error {
	if c.outcomeErr != nil {
		return c.outcomeErr
	}
	c.batches = append(c.batches, append([]registrator.FrameOutcome(nil), outcomes...))
	return nil
}

func (c *recordingClient) WriteSummary(_ context.Context, summary RunSummary) error {
	if c.summaryErr != nil {
		return c.summaryErr
	}
	c.summaries = append(c.summaries, summary)
	return nil
}

func (c *recordingClient) Close() error { return nil }

func TestReport_BatchesInOrder(t *testing.T) {
	client := &recordingClient{}
	report := NewReport(t.Context(), client, ReportOptions{BatchSize: 4})
	for i := range int64(10) {
		report.Record(registrator.FrameOutcome{FrameID: i, Status: registrator.StatusRegistered})
	}
	if report.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", report.Len())
	}
	if len(client.batches) != 2 {
		t.Fatalf("batches written before Finish = %d, want 2", len(client.batches))
	}

	if err := report.Finish(t.Context(), RunSummary{Status: RunStatusCompleted}); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}

	sizes := []int{}
	var next int64
	for _, b := range client.batches {
		sizes = append(sizes, len(b))
		for _, o := range b {
			if o.FrameID != next {
				t.Fatalf("outcome %d written out of order (want %d)", o.FrameID, next)
			}
			next++
		}
	}
	if len(sizes) != 3 || sizes[0] != 4 || sizes[1] != 4 || sizes[2] != 2 {
		t.Errorf("batch sizes = %v, want [4 4 2]", sizes)
	}
	if len(client.summaries) != 1 {
		t.Fatalf("summaries written = %d, want 1", len(client.summaries))
	}
}

func TestReport_FinishOnce(t *testing.T) {
	client := &recordingClient{}
	report := NewReport(t.Context(), client, ReportOptions{})
	report.Record(registrator.FrameOutcome{FrameID: 0})

	if err := report.Finish(t.Context(), RunSummary{}); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	report.Record(registrator.FrameOutcome{FrameID: 1})
	if err := report.Finish(t.Context(), RunSummary{}); err != nil {
		t.Fatalf("second Finish = %v, want nil", err)
	}
	if len(client.batches) != 1 || len(client.summaries) != 1 {
		t.Errorf("writes = %d batches, %d summaries; want 1 and 1", len(client.batches), len(client.summaries))
	}
	if report.Len() != 0 {
		t.Errorf("Len() after Finish = %d, want 0", report.Len())
	}
}

func TestReport_SummaryWrittenAfterOutcomeFailure(t *testing.T) {
	outcomeErr := errors.New("outcomes down")
	client := &recordingClient{outcomeErr: outcomeErr}
	report := NewReport(t.Context(), client, ReportOptions{BatchSize: 1})
	report.Record(registrator.FrameOutcome{FrameID: 0})
	report.Record(registrator.FrameOutcome{FrameID: 1})

	if report.Len() != 0 {
		t.Errorf("Len() after failed write = %d, want 0", report.Len())
	}

	err := report.Finish(t.Context(), RunSummary{Status: RunStatusCompleted})
	if !errors.Is(err, outcomeErr) {
		t.Fatalf("Finish = %v, want outcome error", err)
	}
	if len(client.summaries) != 1 {
		t.Errorf("summary not written after outcome failure")
	}
}

func TestReport_SummaryFailure(t *testing.T) {
	summaryErr := errors.New("summary down")
	client := &recordingClient{summaryErr: summaryErr}
	report := NewReport(t.Context(), client, ReportOptions{})

	if err := report.Finish(t.Context(), RunSummary{}); !errors.Is(err, summaryErr) {
		t.Fatalf("Finish = %v, want summary error", err)
	}
	if len(client.batches) != 0 {
		t.Errorf("empty report wrote %d outcome batches", len(client.batches))
	}
}

// countingClient tracks how many outcomes were handed over per write.
type countingClient struct {
	recordingClient
	largest int
	total   int
}

func (c *countingClient) WriteOutcomes(ctx context.Context, outcomes []registrator.FrameOutcome) error {
	c.largest = max(c.largest, len(outcomes))
	c.total += len(outcomes)
	return nil
}

func TestReport_BufferBoundedByBatchSize(t *testing.T) {
	const batch, n = 16, 10000
	client := &countingClient{}
	report := NewReport(t.Context(), client, ReportOptions{BatchSize: batch})
	for i := range int64(n) {
		report.Record(registrator.FrameOutcome{FrameID: i, Status: registrator.StatusRegistered})
		if report.Len() >= batch {
			t.Fatalf("Len() = %d after %d records, want < %d", report.Len(), i+1, batch)
		}
	}
	if err := report.Finish(t.Context(), RunSummary{}); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	if client.largest != batch || client.total != n {
		t.Errorf("largest write = %d, total = %d; want %d and %d", client.largest, client.total, batch, n)
	}
}
