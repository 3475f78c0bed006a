package pcm_test

import (
	"bytes"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/glizzus/aether/internal/pcm"
	"github.com/google/go-cmp/cmp"
)

func TestLatencyHint(t *testing.T) {
	tc := []struct {
		name   string
		format pcm.Format
		want   int
	}{
		{name: "48k stereo", format: pcm.Format{Channels: 2, SampleRate: 48000}, want: 1024},
		{name: "44.1k stereo", format: pcm.Format{Channels: 2, SampleRate: 44100}, want: 1024},
		{name: "48k mono", format: pcm.Format{Channels: 1, SampleRate: 48000}, want: 512},
		{name: "exact power of two", format: pcm.Format{Channels: 1, SampleRate: 51200}, want: 512},
		{name: "48k 5.1", format: pcm.Format{Channels: 6, SampleRate: 48000}, want: 4096},
		{name: "rounds up", format: pcm.Format{Channels: 1, SampleRate: 101}, want: 2},
	}

	for _, test := range tc {
		t.Run(test.name, func(t *testing.T) {
			if got := pcm.LatencyHint(test.format); got != test.want {
				t.Errorf("expected %d, got %d", test.want, got)
			}
		})
	}
}

func TestMonitorOptions_Args(t *testing.T) {
	opts := pcm.MonitorOptions{
		Device: "alsa_output.monitor",
		Format: pcm.Format{Channels: 2, SampleRate: 48000},
	}

	want := []string{
		"-d", "alsa_output.monitor",
		"-n", "Æther",
		"--rate=48000",
		"--format=float32le",
		"--channels=2",
		"--latency=1024",
		"--volume=65536",
	}
	if diff := cmp.Diff(want, opts.Args()); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
}

// fakeCapture writes a script that ignores its arguments and prints payload.
func fakeCapture(t *testing.T, payload string) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := filepath.Join(t.TempDir(), "capture")
	script := "#!/bin/sh\nprintf '" + payload + "'\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("failed to write fake capture: %v", err)
	}
	return path
}

func TestMonitorStream_ExitEndsStream(t *testing.T) {
	format := pcm.Format{Channels: 2, SampleRate: 48000}
	s := pcm.NewMonitorStream(pcm.MonitorOptions{
		Binary: fakeCapture(t, "abcdefgh"),
		Device: "test",
		Format: format,
	})
	defer s.Close()

	got, err := io.ReadAll(s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := append(pcm.Header(format), []byte("abcdefgh")...)
	if !bytes.Equal(want, got) {
		t.Errorf("expected % x, got % x", want, got)
	}
}

func TestMonitorStream_Close(t *testing.T) {
	s := pcm.NewMonitorStream(pcm.MonitorOptions{
		Binary: fakeCapture(t, ""),
		Format: pcm.Format{Channels: 1, SampleRate: 48000},
	})

	if err := s.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("expected second close to be a no-op, got %v", err)
	}
	if _, err := s.Read(make([]byte, 1)); !errors.Is(err, pcm.ErrStreamClosed) {
		t.Errorf("expected ErrStreamClosed, got %v", err)
	}
}

func TestMonitorStream_MissingBinary(t *testing.T) {
	s := pcm.NewMonitorStream(pcm.MonitorOptions{
		Binary: filepath.Join(t.TempDir(), "does-not-exist"),
		Format: pcm.Format{Channels: 2, SampleRate: 48000},
	})
	defer s.Close()

	if _, err := s.Read(make([]byte, 1)); err == nil {
		t.Errorf("expected error but got none")
	}
}
