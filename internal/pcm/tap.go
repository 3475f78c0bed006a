package pcm

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

var ErrStreamClosed = errors.New("pcm: stream closed")

// Source is a live feed of PCM chunks.
type Source interface {
	// Format reports the feed's current channel count and sample rate.
	Format() (Format, error)
	// Subscribe registers fn for every chunk pushed from now on. The returned
	// function detaches fn; once it returns fn is not called again for new
	// chunks. It must be safe to call more than once.
	Subscribe(fn func([]byte)) (unsubscribe func())
}

// FormatNotifier is implemented by sources whose format can be missing for a
// while. A TapStream over such a source waits for a usable format instead of
// failing.
type FormatNotifier interface {
	// NotifyFormat calls fn whenever the format may have changed. fn must
	// not block.
	NotifyFormat(fn func()) (unsubscribe func())
}

// TapStream reads a Source as a WAV byte stream. The format is sampled, and
// the subscription made, on the first Read; for a FormatNotifier source that
// Read waits until the format is usable. Chunks are queued as they arrive and
// never block the publisher.
type TapStream struct {
	src Source

	mu          sync.Mutex
	cond        *sync.Cond
	started     bool
	ended       bool
	closed      bool
	queue       [][]byte
	budget      budget
	unsubscribe func()
}

// TapOption configures a TapStream.
type TapOption func(*TapStream)

// WithBudget caps the data bytes the stream emits before ending. It cannot
// raise the cap above what the container can declare.
func WithBudget(n int64) TapOption {
	return func(s *TapStream) {
		s.budget.remaining = min(n, s.budget.remaining)
	}
}

func NewTapStream(src Source, opts ...TapOption) *TapStream {
	s := &TapStream{src: src, budget: newBudget()}
	s.cond = sync.NewCond(&s.mu)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TapStream) start() error {
	format, err := s.format()
	if err != nil {
		return err
	}

	s.queue = append(s.queue, Header(format))
	s.unsubscribe = s.src.Subscribe(s.push)
	s.started = true

	slog.Debug("opened tap stream", "channels", format.Channels, "sampleRate", format.SampleRate)
	return nil
}

// format returns the source's format. When the source is a FormatNotifier it
// waits, releasing s.mu, until the format is usable or the stream is closed.
func (s *TapStream) format() (Format, error) {
	notifier, ok := s.src.(FormatNotifier)
	if !ok {
		format, err := s.src.Format()
		if err != nil {
			return Format{}, fmt.Errorf("failed to read tap format: %w", err)
		}
		return format, format.Validate()
	}

	changed := false
	unsubscribe := notifier.NotifyFormat(func() {
		s.mu.Lock()
		changed = true
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer unsubscribe()

	for waited := false; ; waited = true {
		format, err := s.src.Format()
		if err == nil {
			err = format.Validate()
		}
		if err == nil {
			if waited {
				slog.Info("tap format available", "channels", format.Channels, "sampleRate", format.SampleRate)
			}
			return format, nil
		}
		if !waited {
			slog.Info("waiting for tap format", "error", err)
		}

		for !changed && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			return Format{}, ErrStreamClosed
		}
		changed = false
	}
}

func (s *TapStream) push(chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.ended {
		return
	}

	s.queue = append(s.queue, chunk)
	if s.budget.spend(len(chunk)) {
		// The chunk that crosses the limit is still delivered.
		s.ended = true
		s.detach()
		slog.Debug("container budget spent, ending tap stream")
	}
	s.cond.Broadcast()
}

// Read blocks until data is available. It returns io.EOF after the budget is
// spent and ErrStreamClosed after Close.
func (s *TapStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStreamClosed
	}
	if !s.started {
		if err := s.start(); err != nil {
			return 0, err
		}
	}
	if len(p) == 0 {
		return 0, nil
	}

	for len(s.queue) == 0 && !s.ended && !s.closed {
		s.cond.Wait()
	}
	if s.closed {
		return 0, ErrStreamClosed
	}
	if len(s.queue) == 0 {
		return 0, io.EOF
	}

	n := copy(p, s.queue[0])
	if n < len(s.queue[0]) {
		s.queue[0] = s.queue[0][n:]
	} else {
		s.queue[0] = nil
		s.queue = s.queue[1:]
	}
	return n, nil
}

// Close detaches from the source before returning. Chunks published after
// that are never delivered. Calling Close again is a no-op.
func (s *TapStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.queue = nil
	s.detach()
	s.cond.Broadcast()
	return nil
}

func (s *TapStream) detach() {
	if s.unsubscribe != nil {
		unsubscribe := s.unsubscribe
		s.unsubscribe = nil
		unsubscribe()
	}
}

var _ io.ReadCloser = (*TapStream)(nil)
