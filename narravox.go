package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/narravox/cmd"
)

const (
	version = "0.1.0"
)

func main() {
	app := &cli.App{
		Name:    "narravox",
		Usage:   "Narrative report synthesis for large opinion-gathering conversations",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
				Value:   "narravox.toml",
			},
		},
		Commands: []*cli.Command{
			cmd.ServeCommand(),
			cmd.ReportCommand(),
			cmd.ConfigCommand(),
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
