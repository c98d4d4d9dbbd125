package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli"
)

var version = "dev"

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := cli.App{
		Name:      "flashbuy",
		HelpName:  "flashbuy",
		Usage:     "fires a purchase at an exact time on the store's clock",
		Version:   version,
		UsageText: "flashbuy [global options] <command> [arguments...]",
		Flags:     globalFlags,
		Before: func(c *cli.Context) error {
			c.App.Metadata = map[string]interface{}{"ctx": ctx}
			return nil
		},
		Commands: []cli.Command{
			{
				Name:   "run",
				Usage:  "log in, wait for the buy time and attempt the purchase",
				Flags:  runFlags,
				Action: run,
			},
			{
				Name:   "offset",
				Usage:  "measure the offset between the local and the store clock",
				Action: offset,
			},
			{
				Name:      "resolve",
				Usage:     "show the instant a buy time resolves to",
				ArgsUsage: "[HH:MM:SS.mmm]",
				Action:    resolve,
			},
			{
				Name:  "session",
				Usage: "inspect or remove the stored login session",
				Subcommands: []cli.Command{
					{
						Name:   "show",
						Usage:  "list stored cookie names and domains",
						Action: sessionShow,
					},
					{
						Name:   "clear",
						Usage:  "delete the stored session",
						Action: sessionClear,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Error().Err(err).Msg("flashbuy failed")
		stop()
		os.Exit(1)
	}
}

func appContext(c *cli.Context) context.Context {
	if ctx, ok := c.App.Metadata["ctx"].(context.Context); ok {
		return ctx
	}
	return context.Background()
}
