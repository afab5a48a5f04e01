package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ArticlesDB/internal/app"
	"ArticlesDB/internal/config"
	"ArticlesDB/internal/logging"
)

type runOptions struct {
	out     string
	workers int
	sinks   []string
}

func newRunCommand(root *rootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run [topic]",
		Short: "Run the pipeline once and write the snapshot",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			applyRunFlags(&cfg, root, opts, args)

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("initialise application: %w", err)
			}
			defer func() {
				if err := application.Close(); err != nil {
					logger.Warn("close application", "error", err)
				}
			}()

			summary, err := application.Run(ctx, cfg.Topic)
			if err != nil {
				logger.Error("run failed", "run_id", summary.RunID, "error", err)
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d articles from %d posts by %d influencers in %s\n",
				summary.RunID, summary.Articles, summary.Posts, summary.Influencers, summary.Duration.Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.out, "out", "", "JSON snapshot path (overrides snapshot.path)")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "concurrent timeline workers (overrides pipeline.workers)")
	cmd.Flags().StringArrayVar(&opts.sinks, "sink", nil, "snapshot sink, repeatable: json, postgres")
	return cmd
}

func applyRunFlags(cfg *config.Config, root *rootOptions, opts *runOptions, args []string) {
	if len(args) > 0 && args[0] != "" {
		cfg.Topic = args[0]
	}
	if opts.out != "" {
		cfg.Snapshot.Path = opts.out
	}
	if opts.workers > 0 {
		cfg.Pipeline.Workers = opts.workers
	}
	if len(opts.sinks) > 0 {
		cfg.Snapshot.Sinks = opts.sinks
	}
	if root.debug {
		cfg.Logging.Level = "debug"
	}
}
