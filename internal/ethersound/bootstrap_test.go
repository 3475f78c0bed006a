package ethersound_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/glizzus/aether/internal/ethersound"
	"github.com/glizzus/aether/internal/ethersound/ethersoundtest"
	"github.com/glizzus/aether/internal/pcm"
)

func TestBootstrap(t *testing.T) {
	srv := ethersoundtest.NewServer(
		ethersoundtest.Session{ID: 1, PersistentID: "other", SampleRate: 44100, ChannelMask: 0b1},
		ethersoundtest.Session{ID: 5, PersistentID: "broadcast", SampleRate: 48000, ChannelMask: 0b11},
	)
	defer srv.Close()
	srv.SetSecret("hunter2")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, tap, err := ethersound.Bootstrap(ctx, ethersound.BootstrapOptions{
		URL:          srv.URL,
		Secret:       "hunter2",
		PersistentID: "broadcast",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer client.Close()

	if tap.Session() != 5 {
		t.Errorf("expected session 5, got %d", tap.Session())
	}
	if !srv.TapOpen(5) {
		t.Errorf("expected the tap of session 5 to be open")
	}

	format, err := tap.Format()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if format != (pcm.Format{Channels: 2, SampleRate: 48000}) {
		t.Errorf("unexpected format: %+v", format)
	}

	var methods []string
	for _, req := range srv.Requests() {
		methods = append(methods, req.Method)
	}
	want := []string{"Authenticate", "WatchSessionProperty", "WatchSessionProperty", "WatchSessionProperty", "OpenTapStream"}
	if len(methods) != len(want) {
		t.Fatalf("expected requests %v, got %v", want, methods)
	}
	for i := range want {
		if methods[i] != want[i] {
			t.Errorf("expected request %d to be %s, got %s", i, want[i], methods[i])
		}
	}
}

func TestBootstrap_Failures(t *testing.T) {
	tc := []struct {
		name   string
		secret string
		opts   ethersound.BootstrapOptions
		check  func(error) bool
	}{
		{
			name:   "wrong secret",
			secret: "right",
			opts:   ethersound.BootstrapOptions{Secret: "wrong", PersistentID: "x"},
			check: func(err error) bool {
				var authErr *ethersound.AuthenticationError
				return errors.As(err, &authErr)
			},
		},
		{
			name:  "no such session",
			opts:  ethersound.BootstrapOptions{PersistentID: "missing"},
			check: func(err error) bool { return errors.Is(err, ethersound.ErrSessionNotFound) },
		},
	}

	for _, test := range tc {
		t.Run(test.name, func(t *testing.T) {
			srv := ethersoundtest.NewServer(ethersoundtest.Session{ID: 1, PersistentID: "x", SampleRate: 48000, ChannelMask: 1})
			defer srv.Close()
			srv.SetSecret(test.secret)

			opts := test.opts
			opts.URL = srv.URL

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			_, _, err := ethersound.Bootstrap(ctx, opts)
			if !test.check(err) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestBootstrap_ConnectionRefused(t *testing.T) {
	srv := ethersoundtest.NewServer()
	url := srv.URL
	srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, _, err := ethersound.Bootstrap(ctx, ethersound.BootstrapOptions{URL: url}); err == nil {
		t.Errorf("expected error but got none")
	}
}

func TestTap_Subscribe(t *testing.T) {
	srv := ethersoundtest.NewServer(ethersoundtest.Session{ID: 1}, ethersoundtest.Session{ID: 2})
	defer srv.Close()

	client := dial(t, srv)
	tap := client.Tap(2)

	if _, err := tap.Format(); !errors.Is(err, ethersound.ErrPropertyUnknown) {
		t.Errorf("expected ErrPropertyUnknown before watching, got %v", err)
	}
	if _, err := client.Tap(9).Format(); !errors.Is(err, ethersound.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}

	got := make(chan []byte, 4)
	unsubscribe := tap.Subscribe(func(data []byte) { got <- data })
	defer unsubscribe()

	srv.SendTap(1, []byte{0xAA})
	srv.SendTap(2, []byte{0xBB, 0xCC})

	select {
	case data := <-got:
		if len(data) != 2 || data[0] != 0xBB {
			t.Errorf("expected only session 2 data, got % x", data)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for tap data")
	}
}

func TestTap_StreamWaitsForFormat(t *testing.T) {
	srv := ethersoundtest.NewServer(ethersoundtest.Session{ID: 1})
	defer srv.Close()

	client := dial(t, srv)
	// Session 9 does not exist yet; the stream waits for it and its format.
	s := pcm.NewTapStream(client.Tap(9))
	defer s.Close()

	header := make(chan []byte, 1)
	errs := make(chan error, 1)
	go func() {
		buf := make([]byte, pcm.HeaderSize)
		if _, err := io.ReadFull(s, buf); err != nil {
			errs <- err
			return
		}
		header <- buf
	}()

	srv.Notify("SessionsChanged", map[string]any{"Ids": []int64{1, 9}})
	srv.Notify("SessionPropertyChanged", map[string]any{"Session": 9, "Property": "SampleRate", "Value": 48000})
	srv.Notify("SessionPropertyChanged", map[string]any{"Session": 9, "Property": "ChannelMask", "Value": 0})

	select {
	case got := <-header:
		t.Fatalf("expected no header while the mask is empty, got % x", got)
	case err := <-errs:
		t.Fatalf("expected the read to wait, got %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	srv.Notify("SessionPropertyChanged", map[string]any{"Session": 9, "Property": "ChannelMask", "Value": 0b111111})

	select {
	case got := <-header:
		want := pcm.Header(pcm.Format{Channels: 6, SampleRate: 48000})
		if !bytes.Equal(got, want) {
			t.Errorf("expected header % x, got % x", want, got)
		}
	case err := <-errs:
		t.Fatalf("expected the read to wait, got %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the header")
	}
}
