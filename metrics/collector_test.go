package metrics

import (
	"sync"
	"testing"
)

func TestCollector_RecordMethods(t *testing.T) {
	c := NewCollector("file", "/tmp/out.ts")

	c.RecordSubmit(10)
	c.RecordSubmit(20)
	c.RecordSubmit(15)
	c.RecordBuffered(1)
	c.RecordDirectWrite(20)
	c.RecordDrained(10)
	c.RecordDirectWrite(15)
	c.IncStateWrite()
	c.IncStateWrite()
	c.IncStateWriteFailure()
	c.IncStateRemoval()
	c.IncWriteFailure()
	c.IncMergeCompleted()

	s := c.Snapshot()

	if s.SegmentsSubmitted != 3 {
		t.Errorf("SegmentsSubmitted = %d, want 3", s.SegmentsSubmitted)
	}
	if s.BytesSubmitted != 45 {
		t.Errorf("BytesSubmitted = %d, want 45", s.BytesSubmitted)
	}
	if s.SegmentsDirect != 2 {
		t.Errorf("SegmentsDirect = %d, want 2", s.SegmentsDirect)
	}
	if s.SegmentsBuffered != 1 {
		t.Errorf("SegmentsBuffered = %d, want 1", s.SegmentsBuffered)
	}
	if s.SegmentsDrained != 1 {
		t.Errorf("SegmentsDrained = %d, want 1", s.SegmentsDrained)
	}
	if s.BytesWritten != 45 {
		t.Errorf("BytesWritten = %d, want 45", s.BytesWritten)
	}
	if s.StateWrites != 2 {
		t.Errorf("StateWrites = %d, want 2", s.StateWrites)
	}
	if s.StateWriteFailures != 1 {
		t.Errorf("StateWriteFailures = %d, want 1", s.StateWriteFailures)
	}
	if s.StateRemovals != 1 {
		t.Errorf("StateRemovals = %d, want 1", s.StateRemovals)
	}
	if s.WriteFailures != 1 {
		t.Errorf("WriteFailures = %d, want 1", s.WriteFailures)
	}
	if s.MergesCompleted != 1 {
		t.Errorf("MergesCompleted = %d, want 1", s.MergesCompleted)
	}
}

func TestCollector_Dimensions(t *testing.T) {
	c := NewCollector("directory", "/tmp/segs.ts")
	s := c.Snapshot()

	if s.Mode != "directory" {
		t.Errorf("Mode = %q, want %q", s.Mode, "directory")
	}
	if s.Target != "/tmp/segs.ts" {
		t.Errorf("Target = %q, want %q", s.Target, "/tmp/segs.ts")
	}
}

func TestCollector_Lifecycle(t *testing.T) {
	c := NewCollector("file", "out")

	c.IncFreshStart()
	c.IncStaleStateDrop()
	c.RecordResume(7)

	s := c.Snapshot()
	if s.FreshStarts != 1 {
		t.Errorf("FreshStarts = %d, want 1", s.FreshStarts)
	}
	if s.StaleStateDrops != 1 {
		t.Errorf("StaleStateDrops = %d, want 1", s.StaleStateDrops)
	}
	if s.Resumes != 1 {
		t.Errorf("Resumes = %d, want 1", s.Resumes)
	}
	if s.ResumedPosition != 7 {
		t.Errorf("ResumedPosition = %d, want 7", s.ResumedPosition)
	}
}

func TestCollector_PendingHighWater(t *testing.T) {
	c := NewCollector("file", "out")

	c.RecordBuffered(1)
	c.RecordBuffered(4)
	c.RecordBuffered(2)

	if got := c.Snapshot().PendingHighWater; got != 4 {
		t.Errorf("PendingHighWater = %d, want 4", got)
	}
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector

	c.RecordSubmit(1)
	c.RecordDirectWrite(1)
	c.RecordBuffered(1)
	c.RecordDrained(1)
	c.IncWriteFailure()
	c.IncStateWrite()
	c.IncStateWriteFailure()
	c.IncStateRemoval()
	c.RecordResume(1)
	c.IncFreshStart()
	c.IncStaleStateDrop()
	c.IncMergeCompleted()

	s := c.Snapshot()
	if s.SegmentsSubmitted != 0 || s.Mode != "" {
		t.Errorf("nil collector snapshot = %+v, want zero value", s)
	}
}

func TestCollector_ConcurrentAccess(t *testing.T) {
	c := NewCollector("file", "out")

	const goroutines = 10
	const iterations = 100

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for range goroutines {
		go func() {
			defer wg.Done()
			for range iterations {
				c.RecordSubmit(2)
				c.IncStateWrite()
				_ = c.Snapshot()
			}
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	if s.SegmentsSubmitted != goroutines*iterations {
		t.Errorf("SegmentsSubmitted = %d, want %d", s.SegmentsSubmitted, goroutines*iterations)
	}
	if s.BytesSubmitted != 2*goroutines*iterations {
		t.Errorf("BytesSubmitted = %d, want %d", s.BytesSubmitted, 2*goroutines*iterations)
	}
	if s.StateWrites != goroutines*iterations {
		t.Errorf("StateWrites = %d, want %d", s.StateWrites, goroutines*iterations)
	}
}
