package feed

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/pithecene-io/seam/merger"
	"github.com/pithecene-io/seam/types"
)

// DefaultWorkers is the reader concurrency used when none is given.
const DefaultWorkers = 4

// DirSource is a directory of segment files named "<index>" or
// "<index>.<ext>".
type DirSource struct {
	Dir string
	// Ext restricts Scan to "<index>.<Ext>" files and names the files Read
	// opens. Empty matches extensionless names only.
	Ext string
}

// NewDirSource returns a source for dir. When ext is empty the
// directory's own extension is used ("out.ts" -> "ts"), matching the
// layout a directory-mode merger writes.
func NewDirSource(dir, ext string) DirSource {
	if ext == "" {
		ext = merger.DirectoryExtension(dir)
	}
	return DirSource{Dir: dir, Ext: ext}
}

// Path returns the file holding index.
func (s DirSource) Path(index uint64) string {
	return merger.SegmentPath(s.Dir, s.Ext, index)
}

// Scan lists the segment indices present in the directory in ascending
// order. Entries that are not regular files or whose names do not parse
// are ignored.
func (s DirSource) Scan() ([]uint64, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", s.Dir, err)
	}

	var indices []uint64
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if idx, ok := s.parse(e.Name()); ok {
			indices = append(indices, idx)
		}
	}
	slices.Sort(indices)
	return indices, nil
}

func (s DirSource) parse(name string) (uint64, bool) {
	stem := name
	if s.Ext != "" {
		var ok bool
		stem, ok = strings.CutSuffix(name, "."+s.Ext)
		if !ok {
			return 0, false
		}
	}
	if stem == "" || stem[0] == '+' {
		return 0, false
	}
	idx, err := strconv.ParseUint(stem, 10, 64)
	if err != nil {
		return 0, false
	}
	return idx, true
}

// Read returns the content of index.
func (s DirSource) Read(index uint64) ([]byte, error) {
	return os.ReadFile(s.Path(index))
}

// ReadDir reads indices from src with at most workers concurrent reads
// and sends each segment on out as soon as it is read, so segments
// arrive in completion order rather than index order.
func ReadDir(ctx context.Context, src DirSource, indices []uint64, workers int, out chan<- types.Segment) error {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, idx := range indices {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			data, err := src.Read(idx)
			if err != nil {
				return &Error{Kind: ErrorSource, Index: idx, Err: err}
			}
			return send(gctx, out, types.Segment{Index: idx, Data: data})
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return &Error{Kind: ErrorCanceled, Err: err}
	}
	return nil
}

// DirProducer adapts ReadDir to a Producer.
func DirProducer(src DirSource, indices []uint64, workers int) Producer {
	return func(ctx context.Context, out chan<- types.Segment) error {
		return ReadDir(ctx, src, indices, workers, out)
	}
}
