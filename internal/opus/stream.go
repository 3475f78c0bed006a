package opus

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/bwmarrin/discordgo"
)

var ErrVoiceConnClosed = errors.New("voice connection send timeout")

// SilenceFrame is a single 20ms Opus frame of silence.
var SilenceFrame = []byte{0xF8, 0xFF, 0xFE}

// DefaultSendTimeout bounds how long a frame may wait for a voice connection.
const DefaultSendTimeout = time.Minute

// FrameSender accepts Opus frames one at a time.
type FrameSender interface {
	SendFrame(ctx context.Context, frame []byte) error
}

// SendFrames reads Opus frames from source and hands them to dst. It blocks
// until all frames are sent or an error occurs. Returns nil on clean EOF.
func SendFrames(ctx context.Context, source *FrameReader, dst FrameSender) error {
	for {
		frame, err := source.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return err
		}

		if err := dst.SendFrame(ctx, frame); err != nil {
			return err
		}
	}
}

// VoiceSender sends frames to a Discord voice connection.
type VoiceSender struct {
	VC      *discordgo.VoiceConnection
	Timeout time.Duration
}

func (v *VoiceSender) SendFrame(ctx context.Context, frame []byte) error {
	timeout := v.Timeout
	if timeout == 0 {
		timeout = DefaultSendTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case v.VC.OpusSend <- frame:
		return nil
	case <-timer.C:
		return ErrVoiceConnClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}
