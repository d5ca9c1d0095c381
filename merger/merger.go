// Package merger reassembles indexed segments that arrive in any order.
//
// A Merger materializes segments either as one file holding their in-order
// concatenation (file mode) or as one file per index in a directory
// (directory mode). File mode records its write cursor in a small state
// record next to the output after every durable write, so a new Merger for
// the same path resumes where the previous process stopped without
// rewriting durable bytes.
//
// A Merger is not safe for concurrent use. Callers that fetch segments in
// parallel must funnel completions through a single goroutine (see
// package feed).
package merger

import (
	"fmt"
	"io"
	"os"

	"github.com/pithecene-io/seam/log"
	"github.com/pithecene-io/seam/metrics"
)

// Options configures a Merger. The zero value is valid.
type Options struct {
	// Logger receives lifecycle events. Nil disables logging.
	Logger *log.Logger

	// Metrics receives counters. Nil disables collection.
	Metrics *metrics.Collector

	// Strict rejects indices past the last segment and, in file mode,
	// indices already behind the cursor. Without it both are accepted:
	// index 0 is rewritten at the end of the output and other stale
	// indices stay buffered forever.
	Strict bool

	// NoSync skips fsync after each segment write. The state record is
	// still replaced atomically.
	NoSync bool

	// Extension overrides the segment file extension in directory mode.
	// Defaults to the directory's own extension.
	Extension string
}

// Merger accepts segments via Submit and writes them to the target.
type Merger struct {
	out       output
	p         progress
	target    string
	statePath string
	resumed   bool
	strict    bool
	closed    bool
	logger    *log.Logger
	metrics   *metrics.Collector
}

// NewFile creates a file-mode merger for total segments writing to path.
//
// If a valid state record exists next to path and the output can be
// reopened at the recorded offset, the merger resumes from it. Otherwise
// the output is created (or truncated) and any stale record is removed.
func NewFile(total uint64, path string, opts Options) (*Merger, error) {
	if total == 0 {
		return nil, ErrNoSegments
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}

	statePath := StatePath(path)
	state, ok := ReadState(statePath)

	var f *os.File
	resumed := false
	if ok && state.Position > 0 {
		var reason string
		var err error
		f, reason, err = reopenOutput(path, state, total)
		if err != nil {
			return nil, err
		}
		if f != nil {
			resumed = true
		} else {
			logger.Warn("discarding unusable state record", map[string]any{
				"reason":   reason,
				"position": state.Position,
				"flushed":  state.Flushed,
			})
			opts.Metrics.IncStaleStateDrop()
			if err := removeState(statePath); err != nil {
				return nil, err
			}
		}
	}

	if f == nil {
		state = State{}
		var err error
		f, err = os.Create(path)
		if err != nil {
			return nil, wrapStorage("create", path, err)
		}
	}

	m := &Merger{
		out: &fileOutput{
			f:         f,
			path:      path,
			statePath: statePath,
			buf:       newPendingBuffer(),
			noSync:    opts.NoSync,
			logger:    logger,
			metrics:   opts.Metrics,
		},
		p: progress{
			pos:       state.Position,
			last:      total - 1,
			stored:    state.Flushed,
			flushed:   state.Flushed,
			submitted: state.Position,
		},
		target:    path,
		statePath: statePath,
		resumed:   resumed,
		strict:    opts.Strict,
		logger:    logger,
		metrics:   opts.Metrics,
	}

	if resumed {
		logger.Info("resuming merge", map[string]any{
			"position": state.Position,
			"flushed":  state.Flushed,
		})
		opts.Metrics.RecordResume(state.Position)
		if m.p.complete() {
			// Interrupted between the final write and the record removal.
			if err := removeState(statePath); err != nil {
				m.closeQuietly()
				return nil, err
			}
			opts.Metrics.IncStateRemoval()
		}
	} else {
		logger.Debug("starting fresh merge", nil)
		opts.Metrics.IncFreshStart()
	}

	return m, nil
}

// reopenOutput opens path for writing positioned at state.Flushed. A nil
// file with a reason means the record cannot be used and the caller
// should start fresh; a non-nil error is fatal.
func reopenOutput(path string, state State, total uint64) (*os.File, string, error) {
	if state.Position > total {
		return nil, fmt.Sprintf("position %d exceeds segment count %d", state.Position, total), nil
	}

	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, err.Error(), nil
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, "", wrapStorage("stat", path, err)
	}
	size := uint64(info.Size())
	if size < state.Flushed {
		_ = f.Close()
		return nil, fmt.Sprintf("output holds %d bytes, state records %d", size, state.Flushed), nil
	}
	if size > state.Flushed {
		// Bytes written after the last recorded advance; they will be
		// written again from the cursor.
		if err := f.Truncate(int64(state.Flushed)); err != nil {
			_ = f.Close()
			return nil, "", wrapStorage("truncate", path, err)
		}
	}
	if _, err := f.Seek(int64(state.Flushed), io.SeekStart); err != nil {
		_ = f.Close()
		return nil, "", wrapStorage("seek", path, err)
	}
	return f, "", nil
}

// NewDirectory creates a directory-mode merger for total segments. The
// directory is created if missing. Directory mode keeps no state record.
func NewDirectory(total uint64, dir string, opts Options) (*Merger, error) {
	if total == 0 {
		return nil, ErrNoSegments
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, wrapStorage("mkdir", dir, err)
	}

	ext := opts.Extension
	if ext == "" {
		ext = DirectoryExtension(dir)
	}

	opts.Metrics.IncFreshStart()
	logger.Debug("writing segments to directory", map[string]any{"extension": ext})

	return &Merger{
		out:     &dirOutput{dir: dir, ext: ext},
		p:       progress{last: total - 1},
		target:  dir,
		strict:  opts.Strict,
		logger:  logger,
		metrics: opts.Metrics,
	}, nil
}

// Submit hands one segment to the merger. In file mode the segment is
// written if it is next in order, otherwise buffered; buffered segments
// that became contiguous are written before Submit returns.
//
// A failed call leaves the cursor and byte counts as they were, and the
// state record still reflects the last durable advance. The one
// exception is a failure to remove the state record after the final
// segment: the merge is then complete but the error is still returned.
func (m *Merger) Submit(index uint64, data []byte) error {
	if m.closed {
		return ErrClosed
	}
	if m.strict {
		if err := m.checkIndex(index); err != nil {
			return err
		}
	}

	wasComplete := m.p.complete()
	if err := m.out.submit(&m.p, index, data); err != nil {
		m.logger.Error("segment submit failed", map[string]any{
			"index": index,
			"error": err.Error(),
		})
		return err
	}
	m.p.submitted++
	m.metrics.RecordSubmit(len(data))

	if !wasComplete && m.p.complete() {
		m.metrics.IncMergeCompleted()
		m.logger.Info("merge complete", map[string]any{
			"segments": m.p.last + 1,
			"bytes":    m.p.stored,
		})
	}
	return nil
}

func (m *Merger) checkIndex(index uint64) error {
	if index > m.p.last {
		return fmt.Errorf("%w: %d > %d", ErrIndexOutOfRange, index, m.p.last)
	}
	if m.out.mode() == ModeFile && index < m.p.pos {
		return fmt.Errorf("%w: %d < %d", ErrStaleSegment, index, m.p.pos)
	}
	return nil
}

// Position returns the write cursor: in file mode the next index that must
// become durable, in directory mode the number of segments written.
func (m *Merger) Position() uint64 { return m.p.pos }

// IsBuffered reports whether the merge is finished: nothing is pending and
// the cursor has passed the last index.
func (m *Merger) IsBuffered() bool {
	return m.out.pending() == 0 && m.p.complete()
}

// EstimateTotalSize projects the final size from the average submitted
// segment size. Returns 0 before the first submission.
func (m *Merger) EstimateTotalSize() uint64 {
	if m.p.submitted == 0 {
		return 0
	}
	return (m.p.stored / m.p.submitted) * (m.p.last + 1)
}

// StoredBytes returns the bytes accepted so far, including pending ones.
func (m *Merger) StoredBytes() uint64 { return m.p.stored }

// FlushedBytes returns the bytes durable in the output file.
// Always 0 in directory mode.
func (m *Merger) FlushedBytes() uint64 { return m.p.flushed }

// Submitted returns the number of successful Submit calls, counting the
// resumed cursor as already submitted.
func (m *Merger) Submitted() uint64 { return m.p.submitted }

// Pending returns the number of buffered segments.
func (m *Merger) Pending() int { return m.out.pending() }

// PendingIndices returns the buffered indices in ascending order.
func (m *Merger) PendingIndices() []uint64 {
	if fo, ok := m.out.(*fileOutput); ok {
		return fo.buf.indices()
	}
	return nil
}

// PendingBytes returns the payload bytes held in the pending buffer.
func (m *Merger) PendingBytes() uint64 {
	if fo, ok := m.out.(*fileOutput); ok {
		return fo.buf.size()
	}
	return 0
}

// Total returns the fixed segment count.
func (m *Merger) Total() uint64 { return m.p.last + 1 }

// Mode returns the output mode.
func (m *Merger) Mode() Mode { return m.out.mode() }

// Target returns the output file or directory path.
func (m *Merger) Target() string { return m.target }

// StatePath returns the state record path, or "" in directory mode.
func (m *Merger) StatePath() string { return m.statePath }

// Resumed reports whether construction picked up a prior state record.
func (m *Merger) Resumed() bool { return m.resumed }

// SegmentPath returns the file a directory-mode merger writes index to.
// ok is false in file mode.
func (m *Merger) SegmentPath(index uint64) (path string, ok bool) {
	if do, isDir := m.out.(*dirOutput); isDir {
		return SegmentPath(do.dir, do.ext, index), true
	}
	return "", false
}

// Close releases the output file. The state record is left in place so
// an incomplete merge can resume. Close is idempotent.
func (m *Merger) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	return m.out.close()
}

func (m *Merger) closeQuietly() { _ = m.Close() }
