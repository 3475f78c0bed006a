package ethersound

import (
	"context"
	"errors"
	"fmt"
	"math/bits"

	"github.com/glizzus/aether/internal/pcm"
)

// ErrPropertyUnknown is returned when a value is needed that the service has
// not reported, usually because it was never watched.
var ErrPropertyUnknown = errors.New("property value not known yet")

// Tap exposes one session's TapData notifications as a pcm.Source.
type Tap struct {
	client  *Client
	session int64
}

// Tap returns the tap of a session. Data flows only after OpenTapStream.
func (c *Client) Tap(session int64) *Tap {
	return &Tap{client: c, session: session}
}

func (t *Tap) Session() int64 {
	return t.session
}

// Format derives the PCM format from the session's current sample rate and
// channel mask. Only the number of channels matters, not which ones.
func (t *Tap) Format() (pcm.Format, error) {
	s, ok := t.client.Session(t.session)
	if !ok {
		return pcm.Format{}, fmt.Errorf("%w: %d", ErrSessionNotFound, t.session)
	}
	if s.SampleRate == nil {
		return pcm.Format{}, fmt.Errorf("%w: sampleRate of session %d", ErrPropertyUnknown, t.session)
	}
	if s.ChannelMask == nil {
		return pcm.Format{}, fmt.Errorf("%w: channelMask of session %d", ErrPropertyUnknown, t.session)
	}
	return pcm.Format{
		Channels:   bits.OnesCount32(*s.ChannelMask),
		SampleRate: int(*s.SampleRate),
	}, nil
}

// Subscribe calls fn with every chunk pushed for this session.
func (t *Tap) Subscribe(fn func([]byte)) func() {
	sub := t.client.Events.TapData.Subscribe(func(d TapData) {
		if d.Session == t.session {
			fn(d.Data)
		}
	})
	return sub.Unsubscribe
}

// NotifyFormat calls fn when the session's sample rate or channel mask
// changes, and whenever the session list changes.
func (t *Tap) NotifyFormat(fn func()) func() {
	props := t.client.Events.SessionPropertyChanged.Subscribe(func(e SessionPropertyChanged) {
		if e.Session == t.session && (e.Property == SessionSampleRate || e.Property == SessionChannelMask) {
			fn()
		}
	})
	sessions := t.client.Events.SessionsChanged.Subscribe(func(SessionsChanged) { fn() })
	return func() {
		props.Unsubscribe()
		sessions.Unsubscribe()
	}
}

func (t *Tap) Open(ctx context.Context) error {
	return t.client.OpenTapStream(ctx, t.session)
}

func (t *Tap) Close(ctx context.Context) error {
	return t.client.CloseTapStream(ctx, t.session)
}

var (
	_ pcm.Source         = (*Tap)(nil)
	_ pcm.FormatNotifier = (*Tap)(nil)
)
