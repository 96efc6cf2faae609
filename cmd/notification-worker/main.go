package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	app := &cli.App{
		Name:  "notification-worker",
		Usage: "Consume notification messages from SQS and record them in a store",
		Commands: []*cli.Command{
			{
				Name:  "start",
				Usage: "Start consuming the notification queue",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to a YAML config file (NOTIFY_* env vars override it)",
						EnvVars: []string{"NOTIFY_CONFIG"},
					},
					&cli.StringFlag{
						Name:  "log-level",
						Usage: "Log level (debug, info, warn, error), overrides log.level",
					},
					&cli.DurationFlag{
						Name:  "stats-interval",
						Usage: "How often to log queue and consumer stats (0 disables), overrides consumer.stats_interval",
					},
				},
				Action: start,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("notification worker failed")
	}
}
