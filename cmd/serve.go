package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/narravox/internal/api"
	"github.com/narravox/internal/config"
	"github.com/narravox/internal/logging"
)

// ServeCommand returns the CLI command for starting the API server
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the narrative report API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if port := c.Int("port"); port > 0 {
		cfg.General.ListenPort = port
	}

	logging.Setup(cfg.General.LogLevel, cfg.General.LogFormat)

	pipe, err := buildPipeline(c.Context, cfg)
	if err != nil {
		return err
	}
	defer pipe.close()

	fmt.Printf("Starting narravox API server on port %d...\n", cfg.General.ListenPort)

	server := api.NewServer(pipe.reports, cfg)
	return server.Start()
}
