// Package metrics provides per-merge counters.
//
// The Collector accumulates counters for a single merge target. It is a leaf
// package with no internal dependencies so the merge engine can record into it
// without import cycles.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all merge counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Submission
	SegmentsSubmitted int64 `json:"segments_submitted" yaml:"segments_submitted"`
	SegmentsDirect    int64 `json:"segments_direct" yaml:"segments_direct"`     // written immediately on submit
	SegmentsBuffered  int64 `json:"segments_buffered" yaml:"segments_buffered"` // parked in the pending buffer
	SegmentsDrained   int64 `json:"segments_drained" yaml:"segments_drained"`   // written out of the pending buffer
	BytesSubmitted    int64 `json:"bytes_submitted" yaml:"bytes_submitted"`
	BytesWritten      int64 `json:"bytes_written" yaml:"bytes_written"`

	// State record
	StateWrites        int64 `json:"state_writes" yaml:"state_writes"`
	StateWriteFailures int64 `json:"state_write_failures" yaml:"state_write_failures"`
	StateRemovals      int64 `json:"state_removals" yaml:"state_removals"`

	// Lifecycle
	Resumes          int64  `json:"resumes" yaml:"resumes"`
	FreshStarts      int64  `json:"fresh_starts" yaml:"fresh_starts"`
	StaleStateDrops  int64  `json:"stale_state_drops" yaml:"stale_state_drops"`
	WriteFailures    int64  `json:"write_failures" yaml:"write_failures"`
	MergesCompleted  int64  `json:"merges_completed" yaml:"merges_completed"`
	ResumedPosition  uint64 `json:"resumed_position" yaml:"resumed_position"`
	PendingHighWater int    `json:"pending_high_water" yaml:"pending_high_water"`

	// Dimensions (informational, set at construction)
	Mode   string `json:"mode" yaml:"mode"`
	Target string `json:"target" yaml:"target"`
}

// Collector accumulates counters during a merge.
// Thread-safe via sync.Mutex. All methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	segmentsSubmitted int64
	segmentsDirect    int64
	segmentsBuffered  int64
	segmentsDrained   int64
	bytesSubmitted    int64
	bytesWritten      int64

	stateWrites        int64
	stateWriteFailures int64
	stateRemovals      int64

	resumes          int64
	freshStarts      int64
	staleStateDrops  int64
	writeFailures    int64
	mergesCompleted  int64
	resumedPosition  uint64
	pendingHighWater int

	mode   string
	target string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(mode, target string) *Collector {
	return &Collector{mode: mode, target: target}
}

// --- Submission ---

// RecordSubmit records one accepted submission of n bytes.
func (c *Collector) RecordSubmit(n int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.segmentsSubmitted++
	c.bytesSubmitted += int64(n)
	c.mu.Unlock()
}

// RecordDirectWrite records a segment written at submit time.
func (c *Collector) RecordDirectWrite(n int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.segmentsDirect++
	c.bytesWritten += int64(n)
	c.mu.Unlock()
}

// RecordBuffered records a segment parked ahead of the cursor.
// pending is the buffer length after insertion.
func (c *Collector) RecordBuffered(pending int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.segmentsBuffered++
	if pending > c.pendingHighWater {
		c.pendingHighWater = pending
	}
	c.mu.Unlock()
}

// RecordDrained records a buffered segment written once its turn came.
func (c *Collector) RecordDrained(n int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.segmentsDrained++
	c.bytesWritten += int64(n)
	c.mu.Unlock()
}

// IncWriteFailure records a failed segment write or sync.
func (c *Collector) IncWriteFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.writeFailures++
	c.mu.Unlock()
}

// --- State record ---

// IncStateWrite records a successful state record write.
func (c *Collector) IncStateWrite() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.stateWrites++
	c.mu.Unlock()
}

// IncStateWriteFailure records a failed state record write.
func (c *Collector) IncStateWriteFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.stateWriteFailures++
	c.mu.Unlock()
}

// IncStateRemoval records removal of the state record.
func (c *Collector) IncStateRemoval() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.stateRemovals++
	c.mu.Unlock()
}

// --- Lifecycle ---

// RecordResume records construction from a valid state record.
func (c *Collector) RecordResume(position uint64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.resumes++
	c.resumedPosition = position
	c.mu.Unlock()
}

// IncFreshStart records construction without usable prior state.
func (c *Collector) IncFreshStart() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.freshStarts++
	c.mu.Unlock()
}

// IncStaleStateDrop records a state record discarded because the output
// could not be reopened at the recorded offset.
func (c *Collector) IncStaleStateDrop() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.staleStateDrops++
	c.mu.Unlock()
}

// IncMergeCompleted records the cursor passing the last index.
func (c *Collector) IncMergeCompleted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.mergesCompleted++
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		SegmentsSubmitted: c.segmentsSubmitted,
		SegmentsDirect:    c.segmentsDirect,
		SegmentsBuffered:  c.segmentsBuffered,
		SegmentsDrained:   c.segmentsDrained,
		BytesSubmitted:    c.bytesSubmitted,
		BytesWritten:      c.bytesWritten,

		StateWrites:        c.stateWrites,
		StateWriteFailures: c.stateWriteFailures,
		StateRemovals:      c.stateRemovals,

		Resumes:          c.resumes,
		FreshStarts:      c.freshStarts,
		StaleStateDrops:  c.staleStateDrops,
		WriteFailures:    c.writeFailures,
		MergesCompleted:  c.mergesCompleted,
		ResumedPosition:  c.resumedPosition,
		PendingHighWater: c.pendingHighWater,

		Mode:   c.mode,
		Target: c.target,
	}
}
