package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bdobrica/Neuro/internal/neuro/app"
	"github.com/bdobrica/Neuro/internal/neuro/config"
	"github.com/bdobrica/Neuro/internal/neuro/observability"
)

type rootOptions struct {
	configPath string
	envFile    string
	logLevel   string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "neuro",
		Short:         "Neuro personal assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log_level (debug, info, warn, error)")

	root.AddCommand(
		newServeCommand(opts),
		newAskCommand(opts),
		newClassifyCommand(opts),
		newVersionCommand(),
	)
	return root
}

// load reads the configuration and installs the global logger.
func (o *rootOptions) load() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.configPath, o.envFile)
	if err != nil {
		return nil, nil, err
	}
	if o.logLevel != "" {
		if _, err := observability.ParseLevel(o.logLevel); err != nil {
			return nil, nil, err
		}
		cfg.LogLevel = o.logLevel
	}
	logger := observability.Setup(cfg.LogLevel, cfg.LogFormat)
	logger.Debug("configuration loaded", "config", cfg.Summary())
	return cfg, logger, nil
}

// start loads the configuration and builds the application.
func (o *rootOptions) start(ctx context.Context) (*app.App, error) {
	cfg, logger, err := o.load()
	if err != nil {
		return nil, err
	}
	a, err := app.New(ctx, cfg, app.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize neuro: %w", err)
	}
	return a, nil
}
