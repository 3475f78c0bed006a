package config

import (
	"context"

	"github.com/sethvargo/go-envconfig"
)

type DiscordConfig struct {
	Token      string `env:"DISCORD_TOKEN, required"`
	FollowUser string `env:"FOLLOW_USER, required"`
	Debug      bool   `env:"DEBUG"`
}

func NewDiscordConfigFromEnv() (*DiscordConfig, error) {
	return NewDiscordConfig(context.Background(), envconfig.OsLookuper())
}

func NewDiscordConfig(ctx context.Context, l envconfig.Lookuper) (*DiscordConfig, error) {
	var cfg DiscordConfig
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, err
	}
	return &cfg, nil
}
