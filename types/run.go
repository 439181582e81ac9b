// Package types defines core domain types shared by the canv packages:
// container index and history records, camera metadata, wire messages
// and run identity.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"errors"

	"github.com/google/uuid"
)

// RunMeta identifies one registration run.
type RunMeta struct {
	// RunID is the run identifier. Must be non-empty.
	RunID string
	// Input is the source Canv path, if known.
	Input string
	// Output is the registered Canv path, if known.
	Output string
}

// NewRunMeta creates run metadata with a fresh random run ID.
func NewRunMeta(input, output string) *RunMeta {
	return &RunMeta{
		RunID:  uuid.NewString(),
		Input:  input,
		Output: output,
	}
}

// Validate checks that the run metadata is usable.
func (r *RunMeta) Validate() error {
	if r == nil {
		return errors.New("run metadata is nil")
	}
	if r.RunID == "" {
		return errors.New("run_id must be non-empty")
	}
	return nil
}
