package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/narravox/internal/config"
	"github.com/narravox/internal/logging"
	"github.com/narravox/internal/report"
)

// ReportCommand returns the CLI command for one-shot report synthesis
func ReportCommand() *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "Synthesize a narrative report and print each section as a JSON line",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "conversation",
				Aliases:  []string{"i"},
				Usage:    "Conversation to report on",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "report-id",
				Usage: "Report id for cache scoping (defaults to the conversation id)",
			},
			&cli.StringFlag{
				Name:    "model",
				Aliases: []string{"m"},
				Usage:   "Model backend to use instead of the configured default",
			},
			&cli.StringFlag{
				Name:  "model-version",
				Usage: "Exact model version to request from the backend",
			},
			&cli.BoolFlag{
				Name:    "force",
				Aliases: []string{"f"},
				Usage:   "Resynthesize every section even when a fresh cached copy exists",
			},
		},
		Action: runReport,
	}
}

func runReport(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logging.Setup(cfg.General.LogLevel, cfg.General.LogFormat)

	pipe, err := buildPipeline(c.Context, cfg)
	if err != nil {
		return err
	}
	defer pipe.close()

	envelopes, err := pipe.reports.Run(c.Context, report.Request{
		ConversationID: c.String("conversation"),
		ReportID:       c.String("report-id"),
		Model:          c.String("model"),
		ModelVersion:   c.String("model-version"),
		ForceRefresh:   c.Bool("force"),
	})
	if err != nil {
		return fmt.Errorf("failed to start report: %w", err)
	}

	encoder := json.NewEncoder(os.Stdout)
	for envelope := range envelopes {
		if err := encoder.Encode(envelope); err != nil {
			return fmt.Errorf("failed to write section: %w", err)
		}
	}
	return nil
}
