// cli is an operator tool for inspecting and adjusting a running EtherSound
// mixing service without going through Discord.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/glizzus/aether/internal/config"
	"github.com/glizzus/aether/internal/ethersound"
	"github.com/urfave/cli/v2"
)

var targetFlags = []cli.Flag{
	&cli.BoolFlag{
		Name:  "root",
		Usage: "address a root property instead of a session",
	},
	&cli.Uint64Flag{
		Name:  "channel",
		Usage: "address a channel of the session, by its speaker bit",
	},
}

func sessionArg(c *cli.Context, i int) (int64, error) {
	raw := c.Args().Get(i)
	if raw == "" {
		return 0, cli.Exit("Please provide a session id", 1)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, cli.Exit("Invalid session id: "+err.Error(), 1)
	}
	return id, nil
}

// withClient dials the service named by --url, authenticating when a secret
// is configured, and runs fn.
func withClient(c *cli.Context, fn func(*ethersound.Client) error) error {
	client, err := ethersound.Dial(c.Context, c.String("url"))
	if err != nil {
		return cli.Exit("Failed to connect: "+err.Error(), 1)
	}
	defer client.Close()

	if secret := c.String("secret"); secret != "" {
		if _, canAuthenticate := client.Permissions(); canAuthenticate {
			ok, err := client.Authenticate(c.Context, secret)
			if err != nil {
				return cli.Exit("Failed to authenticate: "+err.Error(), 1)
			}
			if !ok {
				return cli.Exit("Secret was rejected", 1)
			}
		}
	}

	return fn(client)
}

func main() {
	if err := config.LoadEnv(); err != nil && !os.IsNotExist(err) {
		log.Fatalf("Failed to load .env file: %v", err)
	}

	cfg, err := config.NewEtherSoundConfigFromEnv()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:        "aether-cli",
		Description: "A development CLI tool for poking at an EtherSound service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "url",
				Usage: "websocket URL of the service",
				Value: cfg.URL,
			},
			&cli.StringFlag{
				Name:  "secret",
				Usage: "shared secret, presented when the service accepts one",
				Value: cfg.Secret,
			},
		},
		Before: func(c *cli.Context) error {
			if c.String("url") == "" {
				return cli.Exit("Please provide the service URL using --url or ETHERSOUND_URL", 1)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "sessions",
				Usage: "List all sessions",
				Action: func(c *cli.Context) error {
					return withClient(c, func(client *ethersound.Client) error {
						for _, p := range summaryProperties {
							if err := client.WatchSessionPropertyAll(c.Context, p); err != nil {
								return cli.Exit("Failed to watch "+string(p)+": "+err.Error(), 1)
							}
						}

						sessions := client.Sessions()
						if len(sessions) == 0 {
							log.Println("No sessions found.")
							return nil
						}
						for _, s := range sessions {
							fmt.Println(formatSession(s))
						}
						return nil
					})
				},
			},
			{
				Name:  "devices",
				Usage: "List the audio endpoints known to the service",
				Action: func(c *cli.Context) error {
					return withClient(c, func(client *ethersound.Client) error {
						devices, err := client.EnumerateDevices(c.Context)
						if err != nil {
							return cli.Exit("Failed to enumerate devices: "+err.Error(), 1)
						}
						for _, d := range devices {
							fmt.Println(formatDevice(d))
						}
						return nil
					})
				},
			},
			{
				Name:      "config",
				Usage:     "Show how a session is wired",
				ArgsUsage: "<session>",
				Action: func(c *cli.Context) error {
					id, err := sessionArg(c, 0)
					if err != nil {
						return err
					}
					return withClient(c, func(client *ethersound.Client) error {
						cfg, err := client.QuerySessionConfiguration(c.Context, id)
						if err != nil {
							return cli.Exit("Failed to query configuration: "+err.Error(), 1)
						}
						out, err := formatConfiguration(cfg)
						if err != nil {
							return err
						}
						fmt.Println(out)
						return nil
					})
				},
			},
			{
				Name:      "watch",
				Usage:     "Print changes to a property until interrupted",
				ArgsUsage: "<session> <property> | --root <property>",
				Flags:     targetFlags,
				Action: func(c *cli.Context) error {
					t, _, err := parseTarget(c.Args().Slice(), c.Bool("root"), c.Uint64("channel"))
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}

					return withClient(c, func(client *ethersound.Client) error {
						unsubscribe := t.subscribe(client.Events, func(prev, next any) {
							fmt.Printf("%s: %v -> %v\n", t, prev, next)
						})
						defer unsubscribe()

						if err := t.watch(c.Context, client); err != nil {
							return cli.Exit("Failed to watch: "+err.Error(), 1)
						}
						defer func() {
							if err := t.unwatch(client, unwatchTimeout); err != nil {
								log.Printf("Failed to unwatch %s: %v", t, err)
							}
						}()

						select {
						case <-c.Context.Done():
							return nil
						case <-client.Done():
							return cli.Exit("Connection lost: "+fmt.Sprint(client.Err()), 1)
						}
					})
				},
			},
			{
				Name:      "set",
				Usage:     "Change a writable property",
				ArgsUsage: "<session> <property> <value> | --root <property> <value>",
				Flags:     targetFlags,
				Action: func(c *cli.Context) error {
					t, rest, err := parseTarget(c.Args().Slice(), c.Bool("root"), c.Uint64("channel"))
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}
					if len(rest) < 1 {
						return cli.Exit("Please provide a value", 1)
					}
					value := parseValue(rest[0])

					return withClient(c, func(client *ethersound.Client) error {
						if err := t.set(c.Context, client, value); err != nil {
							return cli.Exit("Failed to set "+t.String()+": "+err.Error(), 1)
						}
						log.Printf("Set %s to %v", t, value)
						return nil
					})
				},
			},
			{
				Name:      "restart",
				Usage:     "Restart one session, or all of them",
				ArgsUsage: "[session]",
				Action: func(c *cli.Context) error {
					all := c.Args().Len() == 0
					var id int64
					if !all {
						var err error
						if id, err = sessionArg(c, 0); err != nil {
							return err
						}
					}

					return withClient(c, func(client *ethersound.Client) error {
						if all {
							if err := client.RestartAllSessions(c.Context); err != nil {
								return cli.Exit("Failed to restart sessions: "+err.Error(), 1)
							}
							log.Println("Restarted all sessions.")
							return nil
						}
						if err := client.RestartSession(c.Context, id); err != nil {
							return cli.Exit("Failed to restart session: "+err.Error(), 1)
						}
						log.Printf("Restarted session %d.", id)
						return nil
					})
				},
			},
			{
				Name:      "remove",
				Usage:     "Remove a session",
				ArgsUsage: "<session>",
				Action: func(c *cli.Context) error {
					id, err := sessionArg(c, 0)
					if err != nil {
						return err
					}
					return withClient(c, func(client *ethersound.Client) error {
						if err := client.RemoveSession(c.Context, id); err != nil {
							return cli.Exit("Failed to remove session: "+err.Error(), 1)
						}
						log.Printf("Removed session %d.", id)
						return nil
					})
				},
			},
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatalf("Error running CLI: %v", err)
	}
}
