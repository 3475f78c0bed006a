package broadcast_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glizzus/aether/internal/broadcast"
	"github.com/glizzus/aether/internal/pcm"
	"github.com/glizzus/aether/internal/pubsub"
)

// liveSource is a tap whose format can change, or become unknown, between
// streams.
type liveSource struct {
	mu      sync.Mutex
	format  pcm.Format
	err     error
	topic   pubsub.Topic[[]byte]
	changes pubsub.Topic[struct{}]
}

func (s *liveSource) Format() (pcm.Format, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format, s.err
}

func (s *liveSource) Subscribe(fn func([]byte)) func() {
	return s.topic.Subscribe(fn).Unsubscribe
}

func (s *liveSource) NotifyFormat(fn func()) func() {
	return s.changes.Subscribe(func(struct{}) { fn() }).Unsubscribe
}

func (s *liveSource) setFormat(f pcm.Format) {
	s.mu.Lock()
	s.format, s.err = f, nil
	s.mu.Unlock()
	s.changes.Publish(struct{}{})
}

func (s *liveSource) forgetFormat(err error) {
	s.mu.Lock()
	s.format, s.err = pcm.Format{}, err
	s.mu.Unlock()
	s.changes.Publish(struct{}{})
}

type played struct {
	header pcm.HeaderInfo
	body   []byte
	err    error
}

// recordingSink reports each stream's header as soon as it is read, then the
// rest of the stream once it ends.
type recordingSink struct {
	started chan pcm.HeaderInfo
	ended   chan played
}

func (s *recordingSink) Play(ctx context.Context, res broadcast.Resource) error {
	if res.InlineVolume || res.SilencePaddingFrames != 0 {
		return errors.New("expected passthrough resource")
	}

	raw := make([]byte, pcm.HeaderSize)
	if _, err := io.ReadFull(res.Stream, raw); err != nil {
		return err
	}
	header, err := pcm.ParseHeader(raw)
	if err != nil {
		return err
	}
	s.started <- header

	body, err := io.ReadAll(res.Stream)
	s.ended <- played{header: header, body: body, err: err}
	return err
}

func TestLoop_ReopensWithCurrentFormat(t *testing.T) {
	src := &liveSource{format: pcm.Format{Channels: 2, SampleRate: 48000}}
	sink := &recordingSink{
		started: make(chan pcm.HeaderInfo, 1),
		ended:   make(chan played, 1),
	}

	loop := broadcast.NewLoop(func() (io.ReadCloser, error) {
		return pcm.NewTapStream(src, pcm.WithBudget(8)), nil
	}, sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	wait := func() pcm.HeaderInfo {
		select {
		case h := <-sink.started:
			return h
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for a stream")
			return pcm.HeaderInfo{}
		}
	}

	first := wait()
	if first.Channels != 2 || first.SampleRate != 48000 || first.ByteRate != 384000 || first.BlockAlign != 8 {
		t.Errorf("unexpected first header: %+v", first)
	}

	// The mask changes while the first stream is still playing.
	src.setFormat(pcm.Format{Channels: 6, SampleRate: 48000})
	src.topic.Publish([]byte{1, 2, 3, 4})
	src.topic.Publish([]byte{5, 6, 7, 8})

	got := <-sink.ended
	if got.err != nil {
		t.Fatalf("unexpected error: %v", got.err)
	}
	if !bytes.Equal(got.body, []byte{1, 2, 3, 4, 5, 6, 7, 8}) {
		t.Errorf("expected chunks forwarded unmodified, got % x", got.body)
	}

	second := wait()
	if second.Channels != 6 {
		t.Errorf("expected replacement stream to use the current mask, got %d channels", second.Channels)
	}
	if loop.Cycles() != 2 {
		t.Errorf("expected 2 cycles, got %d", loop.Cycles())
	}

	cancel()
	<-sink.ended

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the loop to stop")
	}

	if src.topic.Len() != 0 {
		t.Errorf("expected every stream to be detached, got %d listeners", src.topic.Len())
	}
}

func TestLoop_WaitsForUnknownFormat(t *testing.T) {
	src := &liveSource{format: pcm.Format{Channels: 2, SampleRate: 48000}}
	sink := &recordingSink{
		started: make(chan pcm.HeaderInfo, 1),
		ended:   make(chan played, 1),
	}

	loop := broadcast.NewLoop(func() (io.ReadCloser, error) {
		return pcm.NewTapStream(src, pcm.WithBudget(4)), nil
	}, sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	select {
	case <-sink.started:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the first stream")
	}

	// The session's mask goes missing before the next stream opens.
	src.forgetFormat(errors.New("channelMask not known yet"))
	src.topic.Publish([]byte{1, 2, 3, 4})
	if got := <-sink.ended; got.err != nil {
		t.Fatalf("unexpected error: %v", got.err)
	}

	select {
	case h := <-sink.started:
		t.Fatalf("expected the next stream to wait for a format, got %+v", h)
	case err := <-done:
		t.Fatalf("expected the loop to keep running, got %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	src.setFormat(pcm.Format{Channels: 1, SampleRate: 44100})

	select {
	case h := <-sink.started:
		if h.Channels != 1 || h.SampleRate != 44100 {
			t.Errorf("expected the stream to use the new format, got %+v", h)
		}
	case err := <-done:
		t.Fatalf("expected the loop to keep running, got %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the second stream")
	}
	if loop.Cycles() != 2 {
		t.Errorf("expected 2 cycles, got %d", loop.Cycles())
	}

	cancel()
	<-sink.ended
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if src.topic.Len() != 0 || src.changes.Len() != 0 {
		t.Errorf("expected every stream to be detached")
	}
}

func TestLoop_CancelWhileWaitingForFormat(t *testing.T) {
	src := &liveSource{err: errors.New("session not found")}
	sink := funcSink(func(_ context.Context, res broadcast.Resource) error {
		_, err := io.ReadAll(res.Stream)
		return err
	})

	loop := broadcast.NewLoop(func() (io.ReadCloser, error) {
		return pcm.NewTapStream(src), nil
	}, sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for src.changes.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for the stream to wait on the format")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the loop to stop")
	}
	if src.changes.Len() != 0 {
		t.Errorf("expected the format listener to be removed")
	}
}

type funcSink func(ctx context.Context, res broadcast.Resource) error

func (f funcSink) Play(ctx context.Context, res broadcast.Resource) error { return f(ctx, res) }

type closeCounter struct {
	io.Reader
	closes atomic.Int32
}

func (c *closeCounter) Close() error {
	c.closes.Add(1)
	return nil
}

func TestLoop_Errors(t *testing.T) {
	openErr := errors.New("no tap")
	playErr := errors.New("encoder crashed")

	tc := []struct {
		name string
		open broadcast.Opener
		sink broadcast.Sink
		want error
	}{
		{
			name: "open fails",
			open: func() (io.ReadCloser, error) { return nil, openErr },
			sink: funcSink(func(context.Context, broadcast.Resource) error { return nil }),
			want: openErr,
		},
		{
			name: "sink fails",
			open: func() (io.ReadCloser, error) { return &closeCounter{Reader: bytes.NewReader(nil)}, nil },
			sink: funcSink(func(context.Context, broadcast.Resource) error { return playErr }),
			want: playErr,
		},
	}

	for _, test := range tc {
		t.Run(test.name, func(t *testing.T) {
			err := broadcast.NewLoop(test.open, test.sink).Run(context.Background())
			if !errors.Is(err, test.want) {
				t.Errorf("expected %v, got %v", test.want, err)
			}
		})
	}
}

func TestLoop_ReleasesEveryStream(t *testing.T) {
	var streams []*closeCounter

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	open := func() (io.ReadCloser, error) {
		s := &closeCounter{Reader: bytes.NewReader([]byte("chunk"))}
		streams = append(streams, s)
		return s, nil
	}
	sink := funcSink(func(_ context.Context, res broadcast.Resource) error {
		if _, err := io.ReadAll(res.Stream); err != nil {
			return err
		}
		if len(streams) == 3 {
			cancel()
		}
		return nil
	})

	if err := broadcast.NewLoop(open, sink).Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if len(streams) != 3 {
		t.Fatalf("expected 3 streams, got %d", len(streams))
	}
	for i, s := range streams {
		if s.closes.Load() == 0 {
			t.Errorf("expected stream %d to be closed", i)
		}
	}
}
