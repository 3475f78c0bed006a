package pcm

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/bits"
	"os"
	"os/exec"
	"strconv"
	"sync"
)

const (
	DefaultMonitorBinary = "pamon"
	DefaultClientName    = "Æther"
)

// MonitorOptions configures a capture process.
type MonitorOptions struct {
	// Binary is the capture program, pamon by default.
	Binary string
	// Device is the name of the source to record from.
	Device string
	// ClientName is how the recording appears in the sound server.
	ClientName string
	Format     Format
}

// LatencyHint is the buffer size requested from the capture process: the
// smallest power of two holding 10ms of samples across all channels.
func LatencyHint(f Format) int {
	n := (f.SampleRate*f.Channels + 99) / 100
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

// Args returns the capture command line, without the binary.
func (o MonitorOptions) Args() []string {
	name := o.ClientName
	if name == "" {
		name = DefaultClientName
	}
	return []string{
		"-d", o.Device,
		"-n", name,
		"--rate=" + strconv.Itoa(o.Format.SampleRate),
		"--format=float32le",
		"--channels=" + strconv.Itoa(o.Format.Channels),
		"--latency=" + strconv.Itoa(LatencyHint(o.Format)),
		"--volume=65536",
	}
}

// MonitorStream reads a capture process's stdout as a WAV byte stream. The
// process is started on the first Read. Its exit ends the stream.
type MonitorStream struct {
	opts MonitorOptions

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	pending []byte
	budget  budget
	started bool
	ended   bool
	closed  bool
	reaped  bool
}

func NewMonitorStream(opts MonitorOptions) *MonitorStream {
	if opts.Binary == "" {
		opts.Binary = DefaultMonitorBinary
	}
	return &MonitorStream{opts: opts, budget: newBudget()}
}

func (s *MonitorStream) start() error {
	if err := s.opts.Format.Validate(); err != nil {
		return err
	}

	cmd := exec.Command(s.opts.Binary, s.opts.Args()...)
	cmd.Stderr = os.Stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to pipe %s output: %w", s.opts.Binary, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", s.opts.Binary, err)
	}

	slog.Info("started capture process", "binary", s.opts.Binary, "pid", cmd.Process.Pid, "device", s.opts.Device)

	s.cmd = cmd
	s.stdout = stdout
	s.pending = Header(s.opts.Format)
	s.started = true
	return nil
}

func (s *MonitorStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrStreamClosed
	}
	if !s.started {
		if err := s.start(); err != nil {
			s.mu.Unlock()
			return 0, err
		}
	}
	if len(s.pending) > 0 {
		n := copy(p, s.pending)
		s.pending = s.pending[n:]
		s.mu.Unlock()
		return n, nil
	}
	if s.ended {
		s.mu.Unlock()
		return 0, io.EOF
	}
	stdout := s.stdout
	s.mu.Unlock()

	n, err := stdout.Read(p)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStreamClosed
	}
	if n > 0 && s.budget.spend(n) {
		slog.Debug("container budget spent, ending capture stream")
		s.ended = true
		s.stop()
		return n, nil
	}
	if err != nil {
		slog.Info("capture process exited", "binary", s.opts.Binary, "pid", s.cmd.Process.Pid, "error", err)
		s.ended = true
		s.stop()
		return n, io.EOF
	}
	return n, nil
}

// Close kills the capture process if it is still running. Calling it again
// is a no-op.
func (s *MonitorStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.pending = nil
	s.stop()
	return nil
}

func (s *MonitorStream) stop() {
	if s.cmd == nil || s.reaped {
		return
	}
	s.reaped = true
	if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		slog.Warn("failed to kill capture process", "error", err)
	}
	// The exit status is always non-nil after a kill.
	_ = s.cmd.Wait()
}

var _ io.ReadCloser = (*MonitorStream)(nil)
