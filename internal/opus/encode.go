package opus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/jonas747/ogg"
)

const DefaultEncoderBinary = "ffmpeg"

// oggHeaderPackets is the number of leading packets in an Ogg Opus stream
// that carry metadata rather than audio.
const oggHeaderPackets = 2

type EncodeOptions struct {
	// Binary defaults to DefaultEncoderBinary.
	Binary string
	// Volume is applied by the encoder when set. Nil leaves samples untouched.
	Volume *float64
}

// Args returns the encoder command line. Input is read from stdin and Ogg Opus
// is written to stdout.
func (o EncodeOptions) Args() []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", "pipe:0",
		"-vn",
		"-map", "0:a",
	}
	if o.Volume != nil {
		args = append(args, "-af", "volume="+strconv.FormatFloat(*o.Volume, 'f', -1, 64))
	}
	return append(args,
		"-acodec", "libopus",
		"-f", "ogg",
		"-vbr", "on",
		"-compression_level", "10",
		"-ar", "48000",
		"-ac", "2",
		"-b:a", "64000",
		"-application", "audio",
		"-frame_duration", "20",
		"-packet_loss", "1",
		"-threads", "0",
		"pipe:1",
	)
}

// Encode takes the broadcast as an io.Reader, runs FFmpeg to transcode it to
// Opus, and returns an io.ReadCloser that produces length-prefixed Opus
// frames. The caller should read until EOF. The returned io.ReadCloser must
// be closed to clean up the FFmpeg process.
func Encode(ctx context.Context, r io.Reader, opts EncodeOptions) (io.ReadCloser, error) {
	binary := opts.Binary
	if binary == "" {
		binary = DefaultEncoderBinary
	}

	ffmpeg := exec.CommandContext(ctx, binary, opts.Args()...)
	ffmpeg.Stdin = r
	ffmpeg.Stderr = os.Stderr
	// Stdin is copied by a goroutine that may be blocked on a live stream.
	ffmpeg.WaitDelay = time.Second

	stdout, err := ffmpeg.StdoutPipe()
	if err != nil {
		return nil, err
	}

	if err := ffmpeg.Start(); err != nil {
		return nil, fmt.Errorf("failed to start encoder: %w", err)
	}

	pr, pw := io.Pipe()
	done := make(chan struct{})

	go func() {
		defer close(done)

		decoder := ogg.NewPacketDecoder(ogg.NewDecoder(stdout))
		err := pumpFrames(pw, func() ([]byte, error) {
			packet, _, err := decoder.Decode()
			return packet, err
		})

		if waitErr := ffmpeg.Wait(); waitErr != nil && ctx.Err() == nil {
			slog.Debug("encoder exited", "error", waitErr)
		}
		pw.CloseWithError(err)
	}()

	return &encodeCloser{ReadCloser: pr, cmd: ffmpeg, done: done}, nil
}

// pumpFrames copies audio packets from next into w as length-prefixed
// frames. A nil return means the packet stream ended cleanly.
func pumpFrames(w io.Writer, next func() ([]byte, error)) error {
	skip := oggHeaderPackets
	for {
		packet, err := next()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return err
		}
		if skip > 0 {
			skip--
			continue
		}

		if err := WriteFrame(w, packet); err != nil {
			return err
		}
	}
}

// encodeCloser wraps the pipe reader and ensures the FFmpeg process is cleaned up.
type encodeCloser struct {
	io.ReadCloser
	cmd  *exec.Cmd
	done chan struct{}
}

func (e *encodeCloser) Close() error {
	err := e.ReadCloser.Close()
	// Kill FFmpeg if still running (e.g. pipe closed early).
	if e.cmd.Process != nil {
		if killErr := e.cmd.Process.Kill(); killErr != nil && !errors.Is(killErr, os.ErrProcessDone) {
			slog.Warn("failed to kill encoder", "error", killErr)
		}
	}
	<-e.done
	return err
}
