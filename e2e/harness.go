// Package e2e wires the relay's pieces together against an in-process
// mixing service and fake voice connections.
package e2e

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/glizzus/aether/internal/ethersound"
	"github.com/glizzus/aether/internal/ethersound/ethersoundtest"
	"github.com/glizzus/aether/internal/opus"
	"github.com/glizzus/aether/internal/pcm"
	"github.com/glizzus/aether/internal/voice"
)

// UseEtherSound starts a mixing service for the test and bootstraps a client
// tapping the session with the given persistent id.
func UseEtherSound(t *testing.T, persistentID string, sessions ...ethersoundtest.Session) (*ethersoundtest.Server, *ethersound.Client, *ethersound.Tap) {
	t.Helper()

	srv := ethersoundtest.NewServer(sessions...)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	client, tap, err := ethersound.Bootstrap(ctx, ethersound.BootstrapOptions{
		URL:          srv.URL,
		PersistentID: persistentID,
	})
	if err != nil {
		t.Fatalf("failed to bootstrap: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	return srv, client, tap
}

// WAVFramer stands in for the Opus encoder: the WAV header becomes the first
// frame and every read of sample data becomes a frame of its own.
func WAVFramer(_ context.Context, r io.Reader, _ opus.EncodeOptions) (io.ReadCloser, error) {
	pr, pw := io.Pipe()

	go func() {
		header := make([]byte, pcm.HeaderSize)
		if _, err := io.ReadFull(r, header); err != nil {
			pw.CloseWithError(err)
			return
		}
		if err := opus.WriteFrame(pw, header); err != nil {
			return
		}

		buf := make([]byte, 4096)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				if werr := opus.WriteFrame(pw, buf[:n]); werr != nil {
					return
				}
			}
			if errors.Is(err, io.EOF) {
				pw.Close()
				return
			}
			if err != nil {
				pw.CloseWithError(err)
				return
			}
		}
	}()

	return pr, nil
}

// Listener is a voice connection that hands every frame to the test.
type Listener struct {
	Frames chan []byte

	mu     sync.Mutex
	closed bool
}

func (l *Listener) SendFrame(ctx context.Context, frame []byte) error {
	select {
	case l.Frames <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *Listener) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Guild joins create Listeners keyed by channel id.
type Guild struct {
	mu        sync.Mutex
	listeners map[string]*Listener
}

func (g *Guild) Join(_, channelID string) (voice.Connection, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listeners == nil {
		g.listeners = make(map[string]*Listener)
	}
	l := &Listener{Frames: make(chan []byte, 64)}
	g.listeners[channelID] = l
	return l, nil
}

func (g *Guild) Listener(channelID string) *Listener {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.listeners[channelID]
}

// NextFrame waits for the listener's next frame.
func NextFrame(t *testing.T, l *Listener) []byte {
	t.Helper()
	select {
	case frame := <-l.Frames:
		return frame
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a frame")
		return nil
	}
}
