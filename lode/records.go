package lode

import (
	"encoding/json"
	"time"

	"github.com/justapithecus/canv/metrics"
	"github.com/justapithecus/canv/registrator"
)

// RecordKind discriminator values. record_kind is also the last Hive
// partition key.
const (
	RecordKindFrameOutcome = "frame_outcome"
	RecordKindRunSummary   = "run_summary"
)

// Run statuses recorded in summaries.
const (
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// FrameOutcomeRecord is the storage format for one frame's outcome.
type FrameOutcomeRecord struct {
	RecordKind string  `json:"record_kind"`
	FrameID    int64   `json:"frame_id"`
	Status     string  `json:"status"`
	FOM        float64 `json:"fom"`
	Error      string  `json:"error,omitempty"`

	// Partition keys
	Source string `json:"source"`
	Day    string `json:"day"`
	RunID  string `json:"run_id"`
}

// RunSummaryRecord is the storage format for a run summary.
type RunSummaryRecord struct {
	RecordKind  string `json:"record_kind"`
	Input       string `json:"input"`
	Output      string `json:"output"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	CompletedAt string `json:"completed_at"`
	DurationMs  int64  `json:"duration_ms"`

	metrics.Snapshot

	// Partition keys
	Source string `json:"source"`
	Day    string `json:"day"`
	RunID  string `json:"run_id"`
}

// RunSummary is what a finished run reports.
type RunSummary struct {
	Input       string
	Output      string
	Status      string
	Err         error
	Duration    time.Duration
	CompletedAt time.Time
	Metrics     metrics.Snapshot
}

// toFrameOutcomeRecordMap converts an outcome to a map for Lode storage.
// Lode HiveLayout requires records as map[string]any.
func toFrameOutcomeRecordMap(o registrator.FrameOutcome, cfg Config) map[string]any {
	m := map[string]any{
		"record_kind": RecordKindFrameOutcome,
		"frame_id":    o.FrameID,
		"status":      o.Status,
		"fom":         o.FOM,
		"source":      cfg.Source,
		"day":         cfg.Day,
		"run_id":      cfg.RunID,
	}
	if o.Error != "" {
		m["error"] = o.Error
	}
	return m
}

// toRunSummaryRecordMap converts a summary to a map for Lode storage. The
// metrics snapshot fields are flattened into the record.
func toRunSummaryRecordMap(s RunSummary, cfg Config) (map[string]any, error) {
	rec := RunSummaryRecord{
		RecordKind:  RecordKindRunSummary,
		Input:       s.Input,
		Output:      s.Output,
		Status:      s.Status,
		CompletedAt: s.CompletedAt.UTC().Format(time.RFC3339Nano),
		DurationMs:  s.Duration.Milliseconds(),
		Snapshot:    s.Metrics,
		Source:      cfg.Source,
		Day:         cfg.Day,
		RunID:       cfg.RunID,
	}
	if s.Err != nil {
		rec.Error = s.Err.Error()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// DecodeRunSummary converts a raw summary record read from Lode back into
// its typed form.
func DecodeRunSummary(record map[string]any) (*RunSummaryRecord, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	var rec RunSummaryRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
