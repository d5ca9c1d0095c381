package feed

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/pithecene-io/seam/ipc"
	"github.com/pithecene-io/seam/log"
	"github.com/pithecene-io/seam/types"
)

// FrameSource reads segments from an ipc frame stream.
type FrameSource struct {
	decoder *ipc.FrameDecoder
	logger  *log.Logger

	// Want, when set, filters segments by index; unwanted segments are
	// read and dropped.
	Want func(index uint64) bool

	end     *types.EndFrame
	read    uint64
	dropped uint64
	skipped uint64
}

// NewFrameSource creates a source over r. logger may be nil.
func NewFrameSource(r io.Reader, logger *log.Logger) *FrameSource {
	if logger == nil {
		logger = log.Nop()
	}
	return &FrameSource{decoder: ipc.NewFrameDecoder(r), logger: logger}
}

// End returns the end frame, or nil when the stream ended without one.
func (s *FrameSource) End() *types.EndFrame { return s.end }

// Read returns the number of segment frames decoded.
func (s *FrameSource) Read() uint64 { return s.read }

// Dropped returns the number of segments filtered out by Want.
func (s *FrameSource) Dropped() uint64 { return s.dropped }

// Skipped returns the number of undecodable payloads that were skipped.
func (s *FrameSource) Skipped() uint64 { return s.skipped }

// Stream sends segments on out until an end frame or EOF.
// Framing errors are fatal; an undecodable payload is logged and skipped.
func (s *FrameSource) Stream(ctx context.Context, out chan<- types.Segment) error {
	for {
		if err := ctx.Err(); err != nil {
			return &Error{Kind: ErrorCanceled, Err: err}
		}

		frame, err := s.decoder.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ipc.IsFatalFrameError(err) {
				return &Error{Kind: ErrorSource, Index: s.read, Err: fmt.Errorf("frame stream: %w", err)}
			}
			s.skipped++
			s.logger.Warn("skipping undecodable frame", map[string]any{"error": err.Error()})
			continue
		}

		switch f := frame.(type) {
		case *types.EndFrame:
			s.end = f
			return nil
		case *types.SegmentFrame:
			s.read++
			if s.Want != nil && !s.Want(f.Index) {
				s.dropped++
				continue
			}
			if err := send(ctx, out, f.Segment()); err != nil {
				return err
			}
		}
	}
}
