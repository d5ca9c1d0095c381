package merger

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pithecene-io/seam/log"
	"github.com/pithecene-io/seam/metrics"
)

// Mode selects how segments are materialized.
type Mode string

const (
	// ModeFile concatenates segments in index order into one file.
	ModeFile Mode = "file"
	// ModeDirectory writes one file per segment index.
	ModeDirectory Mode = "directory"
)

// progress is the counter set shared by both output strategies.
type progress struct {
	pos       uint64 // write cursor
	last      uint64 // total - 1
	stored    uint64 // bytes accepted, durable or pending
	flushed   uint64 // bytes durable in the output file
	submitted uint64 // completed Submit calls
}

func (p *progress) complete() bool { return p.pos > p.last }

// output is the mode-specific half of a Merger.
type output interface {
	mode() Mode
	submit(p *progress, index uint64, data []byte) error
	pending() int
	close() error
}

// fileOutput writes segments into a single file strictly in index order,
// buffering early arrivals and recording progress in a state record.
type fileOutput struct {
	f         *os.File
	path      string
	statePath string
	buf       *pendingBuffer
	noSync    bool
	logger    *log.Logger
	metrics   *metrics.Collector
}

func (o *fileOutput) mode() Mode { return ModeFile }

func (o *fileOutput) pending() int { return o.buf.len() }

// submit writes index immediately when it is 0 or equal to a non-zero
// cursor, otherwise parks it. A direct write is followed by a drain of the
// buffer.
//
// Writes and the drain run against a copy of p that is committed only
// once the state record covering them is durable, so a failed call
// leaves the cursor and byte counts unchanged. Bytes written past the
// recorded flushed offset are overwritten by the next attempt.
//
// An index 0 arriving after the cursor moved is still written at the
// current end of the output. Strict mode rejects it before it gets here.
func (o *fileOutput) submit(p *progress, index uint64, data []byte) error {
	if index != 0 && (p.pos == 0 || index != p.pos) {
		o.buf.put(index, data)
		p.stored += uint64(len(data))
		o.metrics.RecordBuffered(o.buf.len())
		return nil
	}

	next := *p
	if err := o.append(next.flushed, data); err != nil {
		return err
	}
	next.pos++
	next.stored += uint64(len(data))
	next.flushed += uint64(len(data))

	drained, err := o.drain(&next)
	if err != nil {
		return err
	}
	if err := o.persist(next); err != nil {
		return err
	}

	*p = next
	o.metrics.RecordDirectWrite(len(data))
	for _, idx := range drained {
		seg, _ := o.buf.peek(idx)
		o.metrics.RecordDrained(len(seg))
		o.buf.remove(idx)
	}
	if len(drained) > 0 {
		o.logger.Debug("drained pending segments", map[string]any{
			"count":    len(drained),
			"position": p.pos,
			"pending":  o.buf.len(),
		})
	}

	if p.complete() {
		if err := removeState(o.statePath); err != nil {
			return err
		}
		o.metrics.IncStateRemoval()
	}
	return nil
}

// drain appends buffered segments while the cursor's index is present,
// advancing p. The segments stay buffered; it returns their indices so
// the caller can release them once the advance is recorded.
func (o *fileOutput) drain(p *progress) ([]uint64, error) {
	var drained []uint64
	for p.pos <= p.last {
		data, ok := o.buf.peek(p.pos)
		if !ok {
			break
		}
		if err := o.append(p.flushed, data); err != nil {
			return nil, err
		}
		drained = append(drained, p.pos)
		p.pos++
		p.flushed += uint64(len(data))
	}
	return drained, nil
}

// append writes data at offset and syncs it. Writing at an explicit
// offset keeps a failed partial write from shifting later ones.
func (o *fileOutput) append(offset uint64, data []byte) error {
	if len(data) > 0 {
		if _, err := o.f.WriteAt(data, int64(offset)); err != nil {
			o.metrics.IncWriteFailure()
			return wrapStorage("write", o.path, err)
		}
	}
	if o.noSync {
		return nil
	}
	if err := o.f.Sync(); err != nil {
		o.metrics.IncWriteFailure()
		return wrapStorage("sync", o.path, err)
	}
	return nil
}

func (o *fileOutput) persist(p progress) error {
	if err := writeState(o.statePath, State{Position: p.pos, Flushed: p.flushed}); err != nil {
		o.metrics.IncStateWriteFailure()
		return err
	}
	o.metrics.IncStateWrite()
	return nil
}

func (o *fileOutput) close() error {
	return wrapStorage("close", o.path, o.f.Close())
}

// dirOutput writes each segment to its own file. Order is irrelevant and
// nothing is buffered or persisted.
type dirOutput struct {
	dir string
	ext string
}

func (o *dirOutput) mode() Mode { return ModeDirectory }

func (o *dirOutput) pending() int { return 0 }

func (o *dirOutput) submit(p *progress, index uint64, data []byte) error {
	path := SegmentPath(o.dir, o.ext, index)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return wrapStorage("write", path, err)
	}
	p.pos++
	p.stored += uint64(len(data))
	return nil
}

func (o *dirOutput) close() error { return nil }

// DirectoryExtension returns the extension used for segment files in dir:
// the directory's own extension without the dot ("out.ts" -> "ts").
func DirectoryExtension(dir string) string {
	return strings.TrimPrefix(filepath.Ext(filepath.Clean(dir)), ".")
}

// SegmentName returns "<index>.<ext>", or "<index>" when ext is empty.
func SegmentName(index uint64, ext string) string {
	name := strconv.FormatUint(index, 10)
	if ext == "" {
		return name
	}
	return name + "." + ext
}

// SegmentPath joins dir and SegmentName.
func SegmentPath(dir, ext string, index uint64) string {
	return filepath.Join(dir, SegmentName(index, ext))
}
