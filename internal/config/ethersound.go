package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

type EtherSoundConfig struct {
	URL     string `env:"ETHERSOUND_URL"`
	Secret  string `env:"ETHERSOUND_SECRET"`
	Session string `env:"ETHERSOUND_SESSION"`
}

func NewEtherSoundConfigFromEnv() (*EtherSoundConfig, error) {
	return NewEtherSoundConfig(context.Background(), envconfig.OsLookuper())
}

func NewEtherSoundConfig(ctx context.Context, l envconfig.Lookuper) (*EtherSoundConfig, error) {
	var cfg EtherSoundConfig
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Enabled reports whether the relay should tap the mixing service.
func (c *EtherSoundConfig) Enabled() bool {
	return c.URL != ""
}

func (c *EtherSoundConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("ETHERSOUND_URL is required")
	}
	if c.Session == "" {
		return fmt.Errorf("ETHERSOUND_SESSION is required")
	}
	return nil
}
