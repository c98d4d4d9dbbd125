package main

import "github.com/urfave/cli"

var globalFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "config, c",
		Usage: "path to the YAML config file",
		Value: "flashbuy.yaml",
	},
	cli.StringFlag{
		Name:  "env",
		Usage: "path to a .env file",
		Value: ".env",
	},
	cli.StringFlag{
		Name:  "log-level",
		Usage: "debug, info, warn or error (overrides config)",
	},
}

var runFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "item, i",
		Usage: "item id",
	},
	cli.StringFlag{
		Name:  "at, t",
		Usage: "buy time as HH:MM:SS.mmm on the store's clock",
	},
	cli.DurationFlag{
		Name:  "poll",
		Usage: "scheduler poll interval",
	},
	cli.DurationFlag{
		Name:  "sleep",
		Usage: "jitter unit between readiness checks",
	},
	cli.StringFlag{
		Name:  "agent",
		Usage: "chrome or http",
	},
	cli.BoolFlag{
		Name:  "headless",
		Usage: "run chrome without a window",
	},
}
