package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

type PulseAudioConfig struct {
	Source string `env:"PULSEAUDIO_SOURCE"`
	// SampleRate is resolved from the source when zero.
	SampleRate int    `env:"PULSEAUDIO_SAMPLERATE"`
	Channels   int    `env:"PULSEAUDIO_CHANNELS, default=2"`
	Monitor    string `env:"PULSEAUDIO_MONITOR, default=pamon"`
	Server     string `env:"PULSEAUDIO_SERVER"`
}

func NewPulseAudioConfigFromEnv() (*PulseAudioConfig, error) {
	return NewPulseAudioConfig(context.Background(), envconfig.OsLookuper())
}

func NewPulseAudioConfig(ctx context.Context, l envconfig.Lookuper) (*PulseAudioConfig, error) {
	var cfg PulseAudioConfig
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Enabled reports whether the relay should capture a PulseAudio source.
func (c *PulseAudioConfig) Enabled() bool {
	return c.Source != ""
}

func (c *PulseAudioConfig) validate() error {
	if c.SampleRate < 0 {
		return fmt.Errorf("PULSEAUDIO_SAMPLERATE must not be negative")
	}
	if c.Channels <= 0 {
		return fmt.Errorf("PULSEAUDIO_CHANNELS must be positive")
	}
	return nil
}
