// Package adapter defines the completion-notification boundary.
//
// Adapters publish merge completion notifications to downstream systems.
// The CLI owns adapter lifecycle; users provide configuration only.
package adapter

import (
	"context"
	"fmt"
	"time"
)

// EventTypeMergeCompleted is the event_type of every MergeCompletedEvent.
const EventTypeMergeCompleted = "merge_completed"

// DefaultBackoff is the base delay between publish attempts.
const DefaultBackoff = 500 * time.Millisecond

// MergeCompletedEvent is the payload published when a merge finishes.
type MergeCompletedEvent struct {
	ContractVersion string `json:"contract_version"`
	EventType       string `json:"event_type"` // always "merge_completed"
	Target          string `json:"target"`
	Mode            string `json:"mode"` // file or directory
	Total           uint64 `json:"total"`
	Position        uint64 `json:"position"`
	StoredBytes     uint64 `json:"stored_bytes"`
	Digest          string `json:"digest,omitempty"`
	Resumed         bool   `json:"resumed"`
	Timestamp       string `json:"timestamp"` // RFC 3339
	DurationMs      int64  `json:"duration_ms"`
}

// Adapter publishes merge completion events to a downstream system.
type Adapter interface {
	// Publish sends a merge completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *MergeCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// Retry calls attempt up to 1+retries times with exponential backoff
// (base, 2*base, 4*base, ...) between calls. It stops early when attempt
// returns nil, when permanent reports the error as non-retriable, or when
// ctx is done. name prefixes returned errors.
func Retry(ctx context.Context, name string, retries int, base time.Duration, permanent func(error) bool, attempt func(context.Context) error) error {
	var lastErr error
	attempts := 1 + retries

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}

		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * base
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-timer.C:
			}
		}

		lastErr = attempt(ctx)
		if lastErr == nil {
			return nil
		}
		if permanent != nil && permanent(lastErr) {
			return fmt.Errorf("%s: non-retriable error: %w", name, lastErr)
		}
	}

	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}
