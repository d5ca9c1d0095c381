package ipc

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/seam/types"
)

// FrameEncoder writes length-prefixed msgpack frames to a stream.
// Not safe for concurrent use.
type FrameEncoder struct {
	writer io.Writer
	sent   uint64
}

// NewFrameEncoder creates a new frame encoder.
func NewFrameEncoder(w io.Writer) *FrameEncoder {
	return &FrameEncoder{writer: w}
}

// Sent returns the number of segment frames written.
func (e *FrameEncoder) Sent() uint64 { return e.sent }

// WriteSegment writes one segment frame.
func (e *FrameEncoder) WriteSegment(seg types.Segment) error {
	if len(seg.Data) > MaxSegmentSize {
		return fmt.Errorf("segment %d is %d bytes, maximum is %d", seg.Index, len(seg.Data), MaxSegmentSize)
	}
	frame := types.SegmentFrame{
		Type:            types.SegmentFrameType,
		ContractVersion: types.FrameContractVersion,
		Index:           seg.Index,
		Data:            seg.Data,
	}
	if err := e.write(&frame); err != nil {
		return fmt.Errorf("segment %d: %w", seg.Index, err)
	}
	e.sent++
	return nil
}

// WriteEnd writes the end-of-stream frame.
func (e *FrameEncoder) WriteEnd(total uint64) error {
	return e.write(&types.EndFrame{
		Type:  types.EndFrameType,
		Total: total,
		Sent:  e.sent,
	})
}

func (e *FrameEncoder) write(v any) error {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if len(payload) > MaxPayloadSize {
		return fmt.Errorf("payload size %d exceeds maximum %d", len(payload), MaxPayloadSize)
	}
	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf[:LengthPrefixSize], uint32(len(payload)))
	copy(buf[LengthPrefixSize:], payload)
	if _, err := e.writer.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}
