package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

const (
	version = "0.1.0"
)

func main() {
	app := &cli.App{
		Name:    "webchat",
		Usage:   "Terminal client for the customer support web chat",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
			},
			&cli.StringFlag{
				Name:  "api",
				Usage: "Backend base `URL`",
			},
			&cli.StringFlag{
				Name:  "ws",
				Usage: "Push channel base `URL`, defaults to the backend URL",
			},
			&cli.StringFlag{
				Name:  "storage",
				Usage: "Identity storage backend (memory, file, redis, dynamodb)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
			},
		},
		Commands: []*cli.Command{
			chatCommand(),
			sendCommand(),
			whoamiCommand(),
			initCommand(),
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
