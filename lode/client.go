// Package lode writes registration run reports to a Lode dataset.
//
// Records are JSONL, partitioned with Lode's HiveLayout by
// source/day/run_id/record_kind. Per-frame outcomes and the run summary are
// separate record kinds, so readers can pick summaries without scanning
// frame records.
package lode

import (
	"context"
	"errors"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/justapithecus/canv/registrator"
)

// DefaultDataset is the dataset id used when none is configured.
const DefaultDataset = "canv"

// partitionKeys is the Hive layout shared by the write and read paths.
var partitionKeys = []string{"source", "day", "run_id", "record_kind"}

// DeriveDay computes the partition day from run start time.
// Format: YYYY-MM-DD in UTC.
func DeriveDay(startTime time.Time) string {
	return startTime.UTC().Format("2006-01-02")
}

// Config holds run report partitioning.
type Config struct {
	// Dataset is the Lode dataset ID.
	Dataset string
	// Source is the partition key for the input container name.
	Source string
	// Day is the partition key derived from run start time (YYYY-MM-DD UTC).
	Day string
	// RunID is the partition key for the run identifier.
	RunID string
}

// Validate checks that every partition key is set.
func (c Config) Validate() error {
	switch {
	case c.Dataset == "":
		return errors.New("lode dataset is required")
	case c.Source == "":
		return errors.New("lode source is required")
	case c.Day == "":
		return errors.New("lode day is required")
	case c.RunID == "":
		return errors.New("lode run id is required")
	}
	return nil
}

// Client persists run reports.
type Client interface {
	// WriteOutcomes writes a batch of frame outcomes, preserving order.
	WriteOutcomes(ctx context.Context, outcomes []registrator.FrameOutcome) error
	// WriteSummary writes the run summary.
	WriteSummary(ctx context.Context, summary RunSummary) error
	// Close releases client resources.
	Close() error
}

// LodeClient is a Lode-backed implementation of Client.
type LodeClient struct {
	dataset lode.Dataset
	config  Config
}

// NewLodeClient creates a Lode client with filesystem storage rooted at root.
func NewLodeClient(cfg Config, root string) (*LodeClient, error) {
	return NewLodeClientWithFactory(cfg, lode.NewFSFactory(root))
}

// NewLodeClientWithFactory creates a Lode client with a custom store factory.
// Use a lode.NewMemory store for testing.
func NewLodeClientWithFactory(cfg Config, factory lode.StoreFactory) (*LodeClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ds, err := newDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, WrapInitError(err, cfg.Dataset)
	}
	return &LodeClient{dataset: ds, config: cfg}, nil
}

func newDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	return lode.NewDataset(
		lode.DatasetID(dataset),
		factory,
		lode.WithHiveLayout(partitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// WriteOutcomes writes frame outcomes as one dataset snapshot.
func (c *LodeClient) WriteOutcomes(ctx context.Context, outcomes []registrator.FrameOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	records := make([]any, 0, len(outcomes))
	for _, o := range outcomes {
		records = append(records, toFrameOutcomeRecordMap(o, c.config))
	}
	if _, err := c.dataset.Write(ctx, records, lode.Metadata{}); err != nil {
		return WrapWriteError(err, c.config.Dataset+"/"+RecordKindFrameOutcome)
	}
	return nil
}

// WriteSummary writes the run summary as its own snapshot.
func (c *LodeClient) WriteSummary(ctx context.Context, summary RunSummary) error {
	record, err := toRunSummaryRecordMap(summary, c.config)
	if err != nil {
		return err
	}
	if _, err := c.dataset.Write(ctx, []any{record}, lode.Metadata{}); err != nil {
		return WrapWriteError(err, c.config.Dataset+"/"+RecordKindRunSummary)
	}
	return nil
}

// Close releases client resources.
func (c *LodeClient) Close() error {
	// Dataset doesn't require explicit close in current Lode API
	return nil
}

// Verify LodeClient implements Client.
var _ Client = (*LodeClient)(nil)
