// Package adapter defines the notification boundary for finished
// registration runs.
//
// Adapters publish a completion event to a downstream system. The register
// command owns adapter lifecycle; users provide configuration only.
package adapter

import (
	"context"
	"fmt"
	"time"
)

// EventTypeRegistrationCompleted is the only event type published.
const EventTypeRegistrationCompleted = "registration_completed"

// DefaultRetryInterval is the fixed spacing between publish attempts.
const DefaultRetryInterval = 500 * time.Millisecond

// RegistrationCompletedEvent is the payload published when a run finishes.
type RegistrationCompletedEvent struct {
	EventType   string `json:"event_type"` // always "registration_completed"
	Version     string `json:"version"`
	RunID       string `json:"run_id"`
	Input       string `json:"input"`
	Output      string `json:"output"`
	Status      string `json:"status"` // completed or failed
	Error       string `json:"error,omitempty"`
	Timestamp   string `json:"timestamp"` // RFC 3339
	Frames      int    `json:"frames"`
	Registered  int    `json:"registered"`
	Failed      int    `json:"failed"`
	Unsubmitted int    `json:"unsubmitted"`
	DurationMs  int64  `json:"duration_ms"`
}

// Adapter publishes completion events to a downstream system.
// Implementations must be safe for single-use per run.
type Adapter interface {
	// Publish sends a completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *RegistrationCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// Attempt calls fn up to attempts times, waiting interval between calls.
// It stops early when fn succeeds, when permanent reports the error as not
// worth retrying, or when ctx is done. The last error is returned wrapped
// with the attempt count.
func Attempt(ctx context.Context, attempts int, interval time.Duration, fn func(context.Context) error, permanent func(error) bool) error {
	var lastErr error
	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context canceled: %w", err)
		}

		if i > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("context canceled between attempts: %w", ctx.Err())
			case <-time.After(interval):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if permanent != nil && permanent(lastErr) {
			return fmt.Errorf("non-retriable error: %w", lastErr)
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}
