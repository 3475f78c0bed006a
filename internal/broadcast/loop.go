// Package broadcast keeps a playback sink fed from a sequence of finite
// streams so that it hears one unbroken broadcast.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/glizzus/aether/internal/generator"
)

// Resource is what the sink is handed for each stream.
type Resource struct {
	Stream io.Reader
	// InlineVolume enables volume scaling in the sink. The relay passes
	// samples through untouched.
	InlineVolume bool
	Volume       float64
	// SilencePaddingFrames is the number of silent frames the sink appends
	// after the stream ends.
	SilencePaddingFrames int
}

// Sink plays a resource. Play returns nil once the stream has been consumed
// to its end.
type Sink interface {
	Play(ctx context.Context, res Resource) error
}

// Opener creates a fresh stream bound to the live source.
type Opener func() (io.ReadCloser, error)

// Loop repeatedly opens a stream, plays it to completion, releases it and
// opens the next one. There is no delay between cycles.
type Loop struct {
	open   Opener
	sink   Sink
	ids    generator.Generator[string]
	cycles atomic.Int64
}

func NewLoop(open Opener, sink Sink) *Loop {
	return &Loop{
		open: open,
		sink: sink,
		ids:  &generator.UUIDV4Generator{},
	}
}

// Cycles returns the number of streams handed to the sink so far.
func (l *Loop) Cycles() int64 {
	return l.cycles.Load()
}

// Run blocks until ctx is cancelled or a stream cannot be opened or played.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := l.cycle(ctx); err != nil {
			return err
		}
	}
}

func (l *Loop) cycle(ctx context.Context) error {
	id, err := l.ids.Next()
	if err != nil {
		return fmt.Errorf("failed to generate stream id: %w", err)
	}

	stream, err := l.open()
	if err != nil {
		return fmt.Errorf("failed to open stream: %w", err)
	}
	l.cycles.Add(1)
	slog.Debug("stream opened", "streamID", id)

	// A sink blocked on Read only notices cancellation once the stream is closed.
	stop := context.AfterFunc(ctx, func() { stream.Close() })
	defer stop()

	err = l.sink.Play(ctx, Resource{Stream: stream})
	if closeErr := stream.Close(); closeErr != nil {
		slog.Warn("failed to close stream", "streamID", id, "error", closeErr)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to play stream %s: %w", id, err)
	}

	slog.Debug("stream ended", "streamID", id)
	return nil
}
