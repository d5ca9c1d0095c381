//nolint:revive // types is a common Go package naming convention
package types

// Frame type discriminants for the segment stream.
const (
	// SegmentFrameType marks a frame carrying one segment's bytes.
	SegmentFrameType = "segment"
	// EndFrameType marks the clean end of a segment stream.
	EndFrameType = "end"
)

// Segment is one indexed chunk of content handed to the merger.
// Index is assigned upstream and lies in [0, total-1].
type Segment struct {
	Index uint64
	Data  []byte
}

// Len returns the payload size in bytes.
func (s Segment) Len() int { return len(s.Data) }

// SegmentFrame is the wire form of a Segment.
// Discriminated from other frames by Type == "segment".
type SegmentFrame struct {
	// Type is always "segment".
	Type string `msgpack:"type"`
	// ContractVersion is the frame contract version of the producer.
	ContractVersion string `msgpack:"contract_version,omitempty"`
	// Index is the segment index.
	Index uint64 `msgpack:"index"`
	// Data is the raw segment content.
	Data []byte `msgpack:"data"`
}

// Segment converts the frame to its in-memory form.
func (f *SegmentFrame) Segment() Segment {
	return Segment{Index: f.Index, Data: f.Data}
}

// EndFrame terminates a segment stream.
// Total, when non-zero, is the producer's view of the segment count.
type EndFrame struct {
	// Type is always "end".
	Type string `msgpack:"type"`
	// Total is the number of segments the producer intended to send.
	Total uint64 `msgpack:"total"`
	// Sent is the number of segment frames actually written.
	Sent uint64 `msgpack:"sent"`
}
