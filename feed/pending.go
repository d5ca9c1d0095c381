package feed

import (
	"errors"
	"io/fs"
	"os"

	"github.com/pithecene-io/seam/merger"
)

// Need reports whether m still needs index. In file mode every index at
// or past the cursor as of the call is needed. In directory mode an index
// is needed unless its segment file already exists.
//
// The returned func never reads merger state, so producers may call it
// while a Funnel submits to m.
func Need(m *merger.Merger) func(index uint64) bool {
	total := m.Total()
	if m.Mode() == merger.ModeFile {
		pos := m.Position()
		return func(index uint64) bool {
			return index < total && index >= pos
		}
	}
	return func(index uint64) bool {
		if index >= total {
			return false
		}
		p, _ := m.SegmentPath(index)
		_, err := os.Stat(p)
		return errors.Is(err, fs.ErrNotExist)
	}
}

// Pending returns the indices m still needs, in ascending order.
func Pending(m *merger.Merger) []uint64 {
	need := Need(m)
	var out []uint64
	for i := range m.Total() {
		if need(i) {
			out = append(out, i)
		}
	}
	return out
}
