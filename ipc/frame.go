// Package ipc implements the segment frame stream.
//
// A stream is a sequence of frames, each a 4-byte big-endian payload length
// followed by a msgpack payload. Payloads are discriminated by their "type"
// field: "segment" frames carry one segment, an optional "end" frame closes
// the stream.
package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/seam/types"
)

// Frame size constants.
const (
	// MaxFrameSize is the maximum frame size (16 MiB), including length prefix.
	MaxFrameSize = 16 * 1024 * 1024
	// MaxPayloadSize is the maximum payload size (MaxFrameSize - 4 bytes).
	MaxPayloadSize = MaxFrameSize - LengthPrefixSize
	// MaxSegmentSize is the largest segment the encoder accepts; it leaves
	// headroom for the msgpack envelope.
	MaxSegmentSize = MaxPayloadSize - 1024
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4
)

// FrameErrorKind classifies frame decoding errors.
type FrameErrorKind int

const (
	// FrameErrorPartial indicates a truncated or incomplete frame.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge indicates a frame exceeding MaxFrameSize.
	FrameErrorTooLarge
	// FrameErrorDecode indicates a msgpack decoding error.
	FrameErrorDecode
	// FrameErrorUnknownType indicates a payload with an unrecognized type.
	FrameErrorUnknownType
)

// FrameError represents a frame decoding error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsFatal returns true if the stream cannot continue after this error.
// Partial and oversized frames lose framing; a bad payload does not.
func (e *FrameError) IsFatal() bool {
	return e.Kind == FrameErrorPartial || e.Kind == FrameErrorTooLarge
}

// IsFatalFrameError returns true if the error is a fatal frame error.
func IsFatalFrameError(err error) bool {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.IsFatal()
	}
	return false
}

// FrameDecoder decodes length-prefixed msgpack frames from a stream.
type FrameDecoder struct {
	reader io.Reader
}

// NewFrameDecoder creates a new frame decoder.
func NewFrameDecoder(r io.Reader) *FrameDecoder {
	return &FrameDecoder{reader: r}
}

// ReadFrame reads a single frame from the stream.
// Returns the raw payload bytes (msgpack-encoded).
//
// Errors:
//   - io.EOF: stream ended cleanly (no more frames)
//   - *FrameError with Kind=FrameErrorPartial: incomplete frame (fatal)
//   - *FrameError with Kind=FrameErrorTooLarge: frame exceeds limit (fatal)
func (d *FrameDecoder) ReadFrame() ([]byte, error) {
	var lengthBuf [LengthPrefixSize]byte
	_, err := io.ReadFull(d.reader, lengthBuf[:])
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read length prefix",
			Err:  err,
		}
	}

	payloadSize := binary.BigEndian.Uint32(lengthBuf[:])
	if payloadSize > MaxPayloadSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", payloadSize, MaxPayloadSize),
		}
	}

	payload := make([]byte, payloadSize)
	_, err = io.ReadFull(d.reader, payload)
	if err != nil {
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read payload",
			Err:  err,
		}
	}

	return payload, nil
}

// Next reads and decodes the next frame. It returns *types.SegmentFrame or
// *types.EndFrame.
func (d *FrameDecoder) Next() (any, error) {
	payload, err := d.ReadFrame()
	if err != nil {
		return nil, err
	}
	return DecodeFrame(payload)
}

// frameTypeProbe is used to peek at the type field without full decode.
type frameTypeProbe struct {
	Type string `msgpack:"type"`
}

// DecodeFrame decodes a payload into *types.SegmentFrame or *types.EndFrame
// based on its type field.
func DecodeFrame(payload []byte) (any, error) {
	var probe frameTypeProbe
	if err := msgpack.Unmarshal(payload, &probe); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to decode frame type",
			Err:  err,
		}
	}

	switch probe.Type {
	case types.SegmentFrameType:
		return DecodeSegment(payload)
	case types.EndFrameType:
		return DecodeEnd(payload)
	default:
		return nil, &FrameError{
			Kind: FrameErrorUnknownType,
			Msg:  fmt.Sprintf("unknown frame type %q", probe.Type),
		}
	}
}

// DecodeSegment decodes a payload as a SegmentFrame.
func DecodeSegment(payload []byte) (*types.SegmentFrame, error) {
	var frame types.SegmentFrame
	if err := msgpack.Unmarshal(payload, &frame); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to decode segment frame",
			Err:  err,
		}
	}
	return &frame, nil
}

// DecodeEnd decodes a payload as an EndFrame.
func DecodeEnd(payload []byte) (*types.EndFrame, error) {
	var frame types.EndFrame
	if err := msgpack.Unmarshal(payload, &frame); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to decode end frame",
			Err:  err,
		}
	}
	return &frame, nil
}
