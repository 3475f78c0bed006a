// Package voice fans the relay's broadcast out to every Discord voice channel
// the bot has joined.
package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/aether/internal/broadcast"
	"github.com/glizzus/aether/internal/opus"
)

// Connection is a joined voice channel that accepts Opus frames.
type Connection interface {
	opus.FrameSender
	Close() error
}

// Joiner connects to a voice channel. Joining a channel in a guild that
// already has a connection moves that connection.
type Joiner interface {
	Join(guildID, channelID string) (Connection, error)
}

// EncodeFunc turns a broadcast stream into length-prefixed Opus frames.
type EncodeFunc func(ctx context.Context, r io.Reader, opts opus.EncodeOptions) (io.ReadCloser, error)

type member struct {
	channelID string
	conn      Connection
}

// Broadcaster is a broadcast.Sink that plays every stream to all joined
// channels at once. Frames are discarded while no channel is joined.
type Broadcaster struct {
	joiner Joiner
	encode EncodeFunc

	mu      sync.Mutex
	members map[string]member
}

func NewBroadcaster(joiner Joiner, encode EncodeFunc) *Broadcaster {
	if encode == nil {
		encode = opus.Encode
	}
	return &Broadcaster{
		joiner:  joiner,
		encode:  encode,
		members: make(map[string]member),
	}
}

// Join connects to channelID in guildID. It is a no-op when the bot is
// already there.
func (b *Broadcaster) Join(guildID, channelID string) error {
	b.mu.Lock()
	current, ok := b.members[guildID]
	b.mu.Unlock()
	if ok && current.channelID == channelID {
		return nil
	}

	conn, err := b.joiner.Join(guildID, channelID)
	if err != nil {
		return fmt.Errorf("unable to join the voice channel: %w", err)
	}

	b.mu.Lock()
	b.members[guildID] = member{channelID: channelID, conn: conn}
	b.mu.Unlock()

	slog.Info("Joined voice channel", "guildID", guildID, "channelID", channelID)
	return nil
}

// Leave disconnects from guildID, if connected.
func (b *Broadcaster) Leave(guildID string) error {
	b.mu.Lock()
	m, ok := b.members[guildID]
	delete(b.members, guildID)
	b.mu.Unlock()

	if !ok {
		return nil
	}

	slog.Info("Leaving voice channel", "guildID", guildID, "channelID", m.channelID)
	return m.conn.Close()
}

// Channel reports the channel joined in guildID.
func (b *Broadcaster) Channel(guildID string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.members[guildID]
	return m.channelID, ok
}

// Guilds returns the guilds with a joined channel, sorted.
func (b *Broadcaster) Guilds() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	guilds := make([]string, 0, len(b.members))
	for id := range b.members {
		guilds = append(guilds, id)
	}
	sort.Strings(guilds)
	return guilds
}

// Close leaves every channel.
func (b *Broadcaster) Close() error {
	var errs []error
	for _, guildID := range b.Guilds() {
		if err := b.Leave(guildID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Play encodes res and sends each frame to the channels joined at the time
// the frame is ready. A connection that fails a send is dropped without
// interrupting the others.
func (b *Broadcaster) Play(ctx context.Context, res broadcast.Resource) error {
	var opts opus.EncodeOptions
	if res.InlineVolume {
		volume := res.Volume
		opts.Volume = &volume
	}

	// The encoder sees a failing source as a short stream.
	src := &sourceReader{r: res.Stream}

	encoded, err := b.encode(ctx, src, opts)
	if err != nil {
		return fmt.Errorf("failed to start encoding: %w", err)
	}
	defer encoded.Close()

	err = opus.SendFrames(ctx, opus.NewFrameReader(encoded), b)
	if srcErr := src.Err(); srcErr != nil {
		return fmt.Errorf("failed to read broadcast: %w", srcErr)
	}
	if err != nil {
		return err
	}

	for range res.SilencePaddingFrames {
		if err := b.SendFrame(ctx, opus.SilenceFrame); err != nil {
			return err
		}
	}
	return nil
}

// sourceReader remembers the first error other than io.EOF.
type sourceReader struct {
	r io.Reader

	mu  sync.Mutex
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		s.mu.Lock()
		if s.err == nil {
			s.err = err
		}
		s.mu.Unlock()
	}
	return n, err
}

func (s *sourceReader) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// SendFrame delivers frame to every joined channel.
func (b *Broadcaster) SendFrame(ctx context.Context, frame []byte) error {
	b.mu.Lock()
	targets := make(map[string]member, len(b.members))
	for guildID, m := range b.members {
		targets[guildID] = m
	}
	b.mu.Unlock()

	for guildID, m := range targets {
		if err := m.conn.SendFrame(ctx, frame); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			slog.Warn("dropping voice connection", "guildID", guildID, "channelID", m.channelID, "error", err)
			b.drop(guildID, m.conn)
		}
	}
	return nil
}

// drop removes conn if it is still the guild's connection.
func (b *Broadcaster) drop(guildID string, conn Connection) {
	b.mu.Lock()
	current, ok := b.members[guildID]
	if ok && current.conn == conn {
		delete(b.members, guildID)
	} else {
		ok = false
	}
	b.mu.Unlock()

	if ok {
		if err := conn.Close(); err != nil {
			slog.Error("failed to disconnect", "guildID", guildID, "error", err)
		}
	}
}

var _ broadcast.Sink = (*Broadcaster)(nil)

// DiscordJoiner joins voice channels through a discordgo session, muted
// for incoming audio.
type DiscordJoiner struct {
	Session *discordgo.Session
}

func (j DiscordJoiner) Join(guildID, channelID string) (Connection, error) {
	vc, err := j.Session.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return nil, err
	}

	if err := vc.Speaking(true); err != nil {
		return nil, fmt.Errorf("error setting speaking state to 'true': %w", err)
	}
	return &discordConn{VoiceSender: opus.VoiceSender{VC: vc}}, nil
}

type discordConn struct {
	opus.VoiceSender
}

func (c *discordConn) Close() error {
	if err := c.VC.Speaking(false); err != nil {
		slog.Error("failed to stop speaking", "error", err)
	}
	return c.VC.Disconnect()
}
