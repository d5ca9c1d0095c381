package reader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/pithecene-io/seam/feed"
	"github.com/pithecene-io/seam/merger"
)

// Inspect describes path. A directory yields a *DirView, anything else a
// *StateView. path may name the output or its state file. total is the
// expected segment count, 0 when unknown; ext overrides the directory
// segment extension.
func Inspect(path string, total uint64, ext string) (any, error) {
	path = strings.TrimSuffix(path, merger.StateExt)
	info, err := os.Stat(path)
	if err == nil && info.IsDir() {
		return InspectDir(path, total, ext)
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return InspectState(path, total)
}

// InspectState reads the state record next to target and compares it
// with the output file.
func InspectState(target string, total uint64) (*StateView, error) {
	v := &StateView{
		Target:    target,
		StatePath: merger.StatePath(target),
		Total:     total,
	}

	if _, err := os.Stat(v.StatePath); err == nil {
		v.StatePresent = true
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("stat %s: %w", v.StatePath, err)
	}
	if state, ok := merger.ReadState(v.StatePath); ok {
		v.StateValid = true
		v.Position = state.Position
		v.Flushed = state.Flushed
	}

	if info, err := os.Stat(target); err == nil {
		v.OutputExists = true
		v.OutputSize = info.Size()
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("stat %s: %w", target, err)
	}

	v.Resumable = v.StateValid && v.Position > 0 && v.OutputExists &&
		uint64(v.OutputSize) >= v.Flushed && (total == 0 || v.Position <= total)

	v.Status = stateStatus(v)
	v.Complete = v.Status == StatusComplete
	if total > 0 {
		v.Progress = ratio(v.Position, total)
		if v.Complete {
			v.Progress = 1
		}
	}
	return v, nil
}

// stateStatus classifies a file target. A finished merge removes its
// state record, so "no record, output present" is complete only when a
// total is known and cannot otherwise be told apart from an unstarted run.
func stateStatus(v *StateView) string {
	switch {
	case v.StatePresent && !v.StateValid:
		return StatusStale
	case v.StateValid && !v.Resumable:
		return StatusStale
	case v.Resumable:
		if v.Total > 0 && v.Position >= v.Total {
			return StatusComplete
		}
		return StatusInProgress
	case !v.OutputExists:
		return StatusEmpty
	case v.Total > 0:
		return StatusComplete
	default:
		return StatusUnknown
	}
}

// InspectDir counts segment files in a directory-mode target.
func InspectDir(dir string, total uint64, ext string) (*DirView, error) {
	src := feed.NewDirSource(dir, ext)
	indices, err := src.Scan()
	if err != nil {
		return nil, err
	}

	v := &DirView{
		Target:    dir,
		Extension: src.Ext,
		Highest:   -1,
		Total:     total,
	}

	present := make(map[uint64]bool, len(indices))
	for _, idx := range indices {
		info, err := os.Stat(src.Path(idx))
		if err != nil {
			continue
		}
		present[idx] = true
		v.Present++
		v.Bytes += info.Size()
		v.Highest = int64(idx)
	}

	if total > 0 {
		var have uint64
		for i := range total {
			if present[i] {
				have++
				continue
			}
			if len(v.Missing) < MaxMissing {
				v.Missing = append(v.Missing, i)
			}
		}
		v.Progress = ratio(have, total)
		v.Complete = have == total
	}

	switch {
	case v.Complete:
		v.Status = StatusComplete
	case v.Present == 0:
		v.Status = StatusEmpty
	case total > 0:
		v.Status = StatusInProgress
	default:
		v.Status = StatusUnknown
	}
	return v, nil
}

func ratio(n, d uint64) float64 {
	if d == 0 {
		return 0
	}
	r := float64(n) / float64(d)
	if r > 1 {
		return 1
	}
	return r
}
