package ethersound_test

import (
	"errors"
	"testing"

	"github.com/glizzus/aether/internal/ethersound"
)

func TestCapitalizeRoundTrip(t *testing.T) {
	names := []string{"masterVolume", "muted", "volume"}
	for _, p := range ethersound.SessionProperties() {
		names = append(names, string(p))
	}

	for _, name := range names {
		wire := ethersound.Capitalize(name)
		if wire == name {
			t.Errorf("expected %q to change when capitalized", name)
		}
		if got := ethersound.Uncapitalize(wire); got != name {
			t.Errorf("expected %q back from %q, got %q", name, wire, got)
		}
	}
}

func TestCapitalize(t *testing.T) {
	tc := []struct {
		input string
		want  string
	}{
		{input: "persistentId", want: "PersistentId"},
		{input: "tapWriteCursorDelta", want: "TapWriteCursorDelta"},
		{input: "", want: ""},
	}

	for _, test := range tc {
		if got := ethersound.Capitalize(test.input); got != test.want {
			t.Errorf("expected %q, got %q", test.want, got)
		}
	}
}

func TestParseSessionProperty(t *testing.T) {
	tc := []struct {
		name  string
		input string
		want  ethersound.SessionProperty
		err   error
	}{
		{name: "local form", input: "channelMask", want: ethersound.SessionChannelMask},
		{name: "wire form", input: "SaturationRecoveryFactor", want: ethersound.SessionSaturationRecoveryFactor},
		{name: "unknown", input: "loudness", err: ethersound.ErrUnknownProperty},
	}

	for _, test := range tc {
		t.Run(test.name, func(t *testing.T) {
			got, err := ethersound.ParseSessionProperty(test.input)
			if !errors.Is(err, test.err) {
				t.Fatalf("expected error %v, got %v", test.err, err)
			}
			if got != test.want {
				t.Errorf("expected %q, got %q", test.want, got)
			}
		})
	}
}

func TestWritable(t *testing.T) {
	tc := []struct {
		name     string
		writable bool
	}{
		{name: "persistentId", writable: false},
		{name: "sampleRate", writable: false},
		{name: "channelMask", writable: false},
		{name: "tapWriteCursorDelta", writable: false},
		{name: "color", writable: true},
		{name: "muted", writable: true},
		{name: "saturationDebounceFactor", writable: true},
	}

	for _, test := range tc {
		t.Run(test.name, func(t *testing.T) {
			if got := ethersound.SessionProperty(test.name).Writable(); got != test.writable {
				t.Errorf("expected writable=%v, got %v", test.writable, got)
			}
		})
	}

	if ethersound.RootMasterVolume.Writable() {
		t.Errorf("expected root masterVolume to be read-only")
	}
	if !ethersound.RootMuted.Writable() {
		t.Errorf("expected root muted to be writable")
	}
	if !ethersound.ChannelVolume.Writable() {
		t.Errorf("expected channel volume to be writable")
	}
}
