package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

// Source is where the relay captures its audio from.
type Source int

const (
	SourceTap Source = iota + 1
	SourceMonitor
)

func (s Source) String() string {
	switch s {
	case SourceTap:
		return "ethersound"
	case SourceMonitor:
		return "pulseaudio"
	default:
		return fmt.Sprintf("Source(%d)", int(s))
	}
}

var ErrNoSource = errors.New("missing environment variables ETHERSOUND_* and PULSEAUDIO_*")

type RelayConfig struct {
	Discord    DiscordConfig
	EtherSound EtherSoundConfig
	PulseAudio PulseAudioConfig
}

func NewRelayConfigFromEnv() (*RelayConfig, error) {
	return NewRelayConfig(context.Background(), envconfig.OsLookuper())
}

func NewRelayConfig(ctx context.Context, l envconfig.Lookuper) (*RelayConfig, error) {
	discord, err := NewDiscordConfig(ctx, l)
	if err != nil {
		return nil, err
	}
	ethersound, err := NewEtherSoundConfig(ctx, l)
	if err != nil {
		return nil, err
	}
	pulseaudio, err := NewPulseAudioConfig(ctx, l)
	if err != nil {
		return nil, err
	}

	cfg := &RelayConfig{
		Discord:    *discord,
		EtherSound: *ethersound,
		PulseAudio: *pulseaudio,
	}
	if _, err := cfg.Source(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Source picks the capture source. The mixing service wins when both are
// configured.
func (c *RelayConfig) Source() (Source, error) {
	switch {
	case c.EtherSound.Enabled():
		if err := c.EtherSound.Validate(); err != nil {
			return 0, err
		}
		return SourceTap, nil
	case c.PulseAudio.Enabled():
		return SourceMonitor, nil
	default:
		return 0, ErrNoSource
	}
}
