package ethersound_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glizzus/aether/internal/ethersound"
	"github.com/glizzus/aether/internal/ethersound/ethersoundtest"
	"github.com/glizzus/aether/internal/rpc"
	"github.com/google/go-cmp/cmp"
)

func dial(t *testing.T, srv *ethersoundtest.Server) *ethersound.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := ethersound.Dial(ctx, srv.URL)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestClient_DialWaitsForInitialState(t *testing.T) {
	srv := ethersoundtest.NewServer(
		ethersoundtest.Session{ID: 4, PersistentID: "a"},
		ethersoundtest.Session{ID: 2, PersistentID: "b"},
	)
	defer srv.Close()

	client := dial(t, srv)

	if diff := cmp.Diff([]int64{4, 2}, client.Root().Sessions); diff != "" {
		t.Errorf("sessions mismatch (-want +got):\n%s", diff)
	}
	if _, canAuthenticate := client.Permissions(); canAuthenticate {
		t.Errorf("expected no authentication without a secret")
	}
}

func TestClient_WatchPopulatesState(t *testing.T) {
	srv := ethersoundtest.NewServer(
		ethersoundtest.Session{ID: 1, PersistentID: "mix", SampleRate: 48000, ChannelMask: 0b11},
	)
	defer srv.Close()

	client := dial(t, srv)
	ctx := context.Background()

	if err := client.WatchSessionPropertyAll(ctx, ethersound.SessionPersistentID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := client.WatchSessionProperty(ctx, 1, ethersound.SessionChannelMask); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s, ok := client.FindSession(func(s ethersound.Session) bool {
		return s.PersistentID != nil && *s.PersistentID == "mix"
	})
	if !ok {
		t.Fatal("expected to find the session by persistent id")
	}
	if diff := cmp.Diff([]uint32{1, 2}, s.ChannelIDs()); diff != "" {
		t.Errorf("channels mismatch (-want +got):\n%s", diff)
	}
	if s.SampleRate != nil {
		t.Errorf("expected unwatched sample rate to be unknown")
	}

	requests := srv.Requests()
	first := requests[0].Params.(map[string]any)
	if first["Session"] != nil || first["Property"] != "PersistentId" {
		t.Errorf("expected a capitalized watch for all sessions, got %+v", first)
	}
}

func TestClient_RejectsLocally(t *testing.T) {
	srv := ethersoundtest.NewServer(ethersoundtest.Session{ID: 1})
	defer srv.Close()

	client := dial(t, srv)
	ctx := context.Background()

	tc := []struct {
		name string
		call func() error
		want error
	}{
		{
			name: "read-only session property",
			call: func() error { return client.SetSessionProperty(ctx, 1, ethersound.SessionSampleRate, 44100) },
			want: ethersound.ErrReadOnlyProperty,
		},
		{
			name: "read-only root property",
			call: func() error { return client.SetRootProperty(ctx, ethersound.RootMasterVolume, 0.5) },
			want: ethersound.ErrReadOnlyProperty,
		},
		{
			name: "unknown session property",
			call: func() error { return client.WatchSessionProperty(ctx, 1, "loudness") },
			want: ethersound.ErrUnknownProperty,
		},
		{
			name: "unknown channel property",
			call: func() error { return client.SetChannelProperty(ctx, 1, 1, "pan", 0) },
			want: ethersound.ErrUnknownProperty,
		},
	}

	for _, test := range tc {
		t.Run(test.name, func(t *testing.T) {
			if err := test.call(); !errors.Is(err, test.want) {
				t.Errorf("expected %v, got %v", test.want, err)
			}
		})
	}

	if n := len(srv.Requests()); n != 0 {
		t.Errorf("expected nothing to be sent, got %d requests", n)
	}
}

func TestClient_Operations(t *testing.T) {
	srv := ethersoundtest.NewServer(ethersoundtest.Session{ID: 1})
	defer srv.Close()

	client := dial(t, srv)
	ctx := context.Background()

	devices, err := client.EnumerateDevices(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(devices) != 1 || devices[0].FriendlyName != "Speakers" || devices[0].State != ethersound.DeviceActive {
		t.Errorf("unexpected devices: %+v", devices)
	}

	added := make(chan ethersound.SessionsChanged, 1)
	client.Events.SessionsChanged.Subscribe(func(e ethersound.SessionsChanged) { added <- e })

	id, err := client.AddSession(ctx, ethersound.SessionConfiguration{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != 2 {
		t.Errorf("expected new session id 2, got %d", id)
	}
	select {
	case e := <-added:
		if diff := cmp.Diff([]int64{2}, e.Added); diff != "" {
			t.Errorf("added mismatch (-want +got):\n%s", diff)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for sessions change")
	}

	channels := 2
	if err := client.ConfigureSession(ctx, 2, ethersound.SessionConfiguration{Channels: &channels}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg, err := client.QuerySessionConfiguration(ctx, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Channels == nil || *cfg.Channels != 2 {
		t.Errorf("unexpected configuration: %+v", cfg)
	}

	for _, call := range []func() error{
		func() error { return client.SetSessionProperty(ctx, 1, ethersound.SessionMuted, true) },
		func() error { return client.SetChannelProperty(ctx, 1, 2, ethersound.ChannelVolume, 0.5) },
		func() error { return client.SetRootProperty(ctx, ethersound.RootMuted, false) },
		func() error { return client.SetSessionPosition(ctx, 2, 0) },
		func() error { return client.RestartSession(ctx, 1) },
		func() error { return client.RestartAllSessions(ctx) },
		func() error { return client.RemoveSession(ctx, 2) },
	} {
		if err := call(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	var configure map[string]any
	for _, req := range srv.Requests() {
		if req.Method == "ConfigureSession" {
			configure = req.Params.(map[string]any)
		}
	}
	if configure["Session"] != float64(2) || configure["Channels"] != float64(2) {
		t.Errorf("expected configuration merged with session id, got %+v", configure)
	}
}

func TestClient_CloseIsTerminal(t *testing.T) {
	srv := ethersoundtest.NewServer()
	defer srv.Close()
	srv.Ignore("RestartAllSessions")

	client := dial(t, srv)

	closed := make(chan error, 1)
	client.Events.Closed.Subscribe(func(err error) { closed <- err })

	result := make(chan error, 1)
	go func() { result <- client.RestartAllSessions(context.Background()) }()

	deadline := time.After(5 * time.Second)
	for len(srv.Requests()) == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the request to reach the server")
		case <-time.After(10 * time.Millisecond):
		}
	}

	srv.CloseConnections()

	select {
	case err := <-result:
		if !errors.Is(err, rpc.ErrClosed) {
			t.Errorf("expected outstanding request to fail with ErrClosed, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the outstanding request to fail")
	}

	select {
	case err := <-closed:
		if !errors.Is(err, rpc.ErrClosed) {
			t.Errorf("expected closed event with ErrClosed, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for closed event")
	}
}
