// Package feed moves segments from their sources into a merger.
//
// A merger accepts one caller at a time. Producers (directory readers,
// frame streams) run concurrently and send segments on a channel; Funnel
// drains that channel on a single goroutine and is the only caller of
// Submit.
package feed

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/pithecene-io/seam/types"
)

// Submitter accepts segments. *merger.Merger implements it.
type Submitter interface {
	Submit(index uint64, data []byte) error
}

// ErrorKind classifies feed errors.
type ErrorKind int

const (
	// ErrorSource indicates a producer failed to read a segment.
	ErrorSource ErrorKind = iota
	// ErrorSubmit indicates the merger rejected or failed to store a segment.
	ErrorSubmit
	// ErrorCanceled indicates context cancellation.
	ErrorCanceled
)

// Error wraps a feed failure with its classification.
type Error struct {
	Kind  ErrorKind
	Index uint64
	Err   error
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrorSubmit:
		return fmt.Sprintf("submit segment %d: %v", e.Index, e.Err)
	case ErrorSource:
		return fmt.Sprintf("read segment %d: %v", e.Index, e.Err)
	default:
		return e.Err.Error()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func isKind(err error, kind ErrorKind) bool {
	var feedErr *Error
	if errors.As(err, &feedErr) {
		return feedErr.Kind == kind
	}
	return false
}

// IsSourceError returns true if a producer failed.
func IsSourceError(err error) bool { return isKind(err, ErrorSource) }

// IsSubmitError returns true if the merger failed.
func IsSubmitError(err error) bool { return isKind(err, ErrorSubmit) }

// IsCanceledError returns true if the feed stopped on context cancellation.
func IsCanceledError(err error) bool { return isKind(err, ErrorCanceled) }

// Funnel submits every segment received on in, in arrival order, until in
// is closed. It returns the number of segments submitted and the first
// submit error. Producers must watch ctx: Funnel stops reading on error.
func Funnel(ctx context.Context, sink Submitter, in <-chan types.Segment) (uint64, error) {
	var n uint64
	for {
		select {
		case <-ctx.Done():
			return n, &Error{Kind: ErrorCanceled, Err: ctx.Err()}
		case seg, ok := <-in:
			if !ok {
				return n, nil
			}
			if err := sink.Submit(seg.Index, seg.Data); err != nil {
				return n, &Error{Kind: ErrorSubmit, Index: seg.Index, Err: err}
			}
			n++
		}
	}
}

// Producer sends segments on out until it is exhausted or ctx is done.
// It must not close out.
type Producer func(ctx context.Context, out chan<- types.Segment) error

// Run connects produce to sink through Funnel with a channel of the given
// buffer size. The first failure on either side cancels the other.
func Run(ctx context.Context, sink Submitter, buffer int, produce Producer) (uint64, error) {
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan types.Segment, buffer)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(ch)
		return produce(gctx, ch)
	})

	var submitted uint64
	g.Go(func() error {
		var err error
		submitted, err = Funnel(gctx, sink, ch)
		return err
	})

	err := g.Wait()
	if err == nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = &Error{Kind: ErrorCanceled, Err: ctxErr}
		}
	}
	return submitted, err
}

// send delivers seg on out unless ctx is done first.
func send(ctx context.Context, out chan<- types.Segment, seg types.Segment) error {
	select {
	case <-ctx.Done():
		return &Error{Kind: ErrorCanceled, Err: ctx.Err()}
	case out <- seg:
		return nil
	}
}
