package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/kirillkom/city-osm-features/internal/bootstrap"
	"github.com/kirillkom/city-osm-features/internal/config"
	"github.com/kirillkom/city-osm-features/internal/observability/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		slog.Error("pipeline_failed", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "pipeline",
		Usage: "Extract, classify and summarise OpenStreetMap features for configured cities",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "env-file",
				Value: cli.NewStringSlice(".env"),
				Usage: "dotenv files loaded before reading configuration; missing files are ignored",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "pipeline config file (overrides PIPELINE_CONFIG)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Value: "text",
				Usage: "text or json",
			},
			&cli.BoolFlag{
				Name:  "no-progress",
				Usage: "disable scan progress bars",
			},
		},
		Before: func(cCtx *cli.Context) error {
			for _, file := range cCtx.StringSlice("env-file") {
				_ = godotenv.Load(file)
			}
			cfg := config.Load()
			slog.SetDefault(logging.New(os.Stderr, "pipeline", cfg.LogLevel, cCtx.String("log-format")))
			return nil
		},
		Commands: []*cli.Command{
			runCommand(),
			enqueueCommand(),
			boundariesCommand(),
			classifyCommand(),
			datasetsCommand(),
			summaryCommand(),
		},
	}
}

// openApp loads configuration after the dotenv files and bootstraps the services.
func openApp(cCtx *cli.Context, withQueue bool) (*bootstrap.App, error) {
	cfg := config.Load()
	if path := cCtx.String("config"); path != "" {
		cfg.PipelineConfigPath = path
	}
	opts := bootstrap.Options{Service: "pipeline", WithQueue: withQueue}
	if !cCtx.Bool("no-progress") {
		opts.Progress = terminalProgress{out: os.Stderr}
	}
	return bootstrap.New(cCtx.Context, cfg, opts)
}

func printJSON(cCtx *cli.Context, v any) error {
	enc := json.NewEncoder(cCtx.App.Writer)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
