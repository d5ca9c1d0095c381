package merger

import "slices"

// pendingBuffer holds segments that arrived ahead of the write cursor,
// keyed by index. Data is copied on insert so callers may reuse buffers.
type pendingBuffer struct {
	segs  map[uint64][]byte
	bytes uint64
}

func newPendingBuffer() *pendingBuffer {
	return &pendingBuffer{segs: make(map[uint64][]byte)}
}

// put stores a copy of data under index, replacing any earlier entry.
func (b *pendingBuffer) put(index uint64, data []byte) {
	if old, ok := b.segs[index]; ok {
		b.bytes -= uint64(len(old))
	}
	b.segs[index] = slices.Clone(data)
	b.bytes += uint64(len(data))
}

// peek returns the entry for index without removing it.
func (b *pendingBuffer) peek(index uint64) ([]byte, bool) {
	data, ok := b.segs[index]
	return data, ok
}

// remove drops the entry for index.
func (b *pendingBuffer) remove(index uint64) {
	if data, ok := b.segs[index]; ok {
		b.bytes -= uint64(len(data))
		delete(b.segs, index)
	}
}

func (b *pendingBuffer) len() int { return len(b.segs) }

// size is the number of payload bytes held.
func (b *pendingBuffer) size() uint64 { return b.bytes }

// indices returns the buffered indices in ascending order.
func (b *pendingBuffer) indices() []uint64 {
	out := make([]uint64, 0, len(b.segs))
	for idx := range b.segs {
		out = append(out, idx)
	}
	slices.Sort(out)
	return out
}
