// relay streams a live audio source into whatever Discord voice channel a
// chosen user is sitting in.
//
// The source is either a session of an EtherSound mixing service, tapped over
// its websocket API, or a PulseAudio source captured with pamon. Configuration
// comes from the environment, optionally seeded from a .env file.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/glizzus/aether/internal/broadcast"
	"github.com/glizzus/aether/internal/config"
	"github.com/glizzus/aether/internal/ethersound"
	"github.com/glizzus/aether/internal/handler"
	"github.com/glizzus/aether/internal/opus"
	"github.com/glizzus/aether/internal/pcm"
	"github.com/glizzus/aether/internal/voice"
)

// source is an opener plus whatever must be released when the relay stops.
type source struct {
	open  broadcast.Opener
	close func()
}

func openTapSource(ctx context.Context, cfg config.EtherSoundConfig, cancel context.CancelCauseFunc) (*source, error) {
	client, tap, err := ethersound.Bootstrap(ctx, ethersound.BootstrapOptions{
		URL:          cfg.URL,
		Secret:       cfg.Secret,
		PersistentID: cfg.Session,
	})
	if err != nil {
		return nil, err
	}

	// Losing the service is fatal.
	go func() {
		<-client.Done()
		cancel(fmt.Errorf("connection to EtherSound lost: %w", client.Err()))
	}()

	return &source{
		open: func() (io.ReadCloser, error) {
			return pcm.NewTapStream(tap), nil
		},
		close: func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tap.Close(ctx); err != nil {
				slog.Warn("failed to close tap", "error", err)
			}
			if err := client.Close(); err != nil {
				slog.Warn("failed to close EtherSound connection", "error", err)
			}
		},
	}, nil
}

func openMonitorSource(cfg config.PulseAudioConfig) (*source, error) {
	format := pcm.Format{Channels: cfg.Channels, SampleRate: cfg.SampleRate}
	if format.SampleRate == 0 {
		native, err := pcm.LookupSourceFormat(cfg.Server, cfg.Source)
		if err != nil {
			return nil, fmt.Errorf("PULSEAUDIO_SAMPLERATE is unset and the source format is unknown: %w", err)
		}
		format.SampleRate = native.SampleRate
		slog.Info("Using native sample rate", "source", cfg.Source, "sampleRate", native.SampleRate, "nativeChannels", native.Channels)
	}
	if err := format.Validate(); err != nil {
		return nil, err
	}

	opts := pcm.MonitorOptions{
		Binary: cfg.Monitor,
		Device: cfg.Source,
		Format: format,
	}
	slog.Info("Capturing PulseAudio source", "source", cfg.Source, "channels", format.Channels, "sampleRate", format.SampleRate)

	return &source{
		open: func() (io.ReadCloser, error) {
			return pcm.NewMonitorStream(opts), nil
		},
		close: func() {},
	}, nil
}

func runRelayForever() error {
	flags := pflag.NewFlagSet("relay", pflag.ContinueOnError)
	envFile := flags.String("env-file", config.DefaultEnvFile, "file to seed the environment from")
	debug := flags.Bool("debug", false, "log at debug level")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if err := config.LoadEnv(*envFile); err != nil {
		if os.IsNotExist(err) {
			slog.Warn("No .env file found, continuing without it", "path", *envFile)
		} else {
			return fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	cfg, err := config.NewRelayConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *debug || cfg.Discord.Debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancelCause(signalCtx)
	defer cancel(nil)

	kind, err := cfg.Source()
	if err != nil {
		return err
	}

	var src *source
	switch kind {
	case config.SourceTap:
		src, err = openTapSource(ctx, cfg.EtherSound, cancel)
	case config.SourceMonitor:
		src, err = openMonitorSource(cfg.PulseAudio)
	}
	if err != nil {
		return fmt.Errorf("failed to open %s source: %w", kind, err)
	}
	defer src.close()

	follower := &handler.Follower{UserID: cfg.Discord.FollowUser}
	session, err := handler.NewSession(cfg.Discord.Token, follower.Handlers())
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	broadcaster := voice.NewBroadcaster(voice.DiscordJoiner{Session: session}, opus.Encode)
	follower.Voice = broadcaster

	if err := session.Open(); err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	defer func() {
		if err := broadcaster.Close(); err != nil {
			slog.Warn("failed to leave voice channels", "error", err)
		}
		if err := session.Close(); err != nil {
			slog.Warn("failed to close session", "error", err)
		}
	}()

	err = broadcast.NewLoop(src.open, broadcaster).Run(ctx)
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	slog.Info("Shutting down")
	return nil
}

func main() {
	if err := runRelayForever(); err != nil {
		slog.Error("failed to run relay", "error", err)
		os.Exit(1)
	}
}
