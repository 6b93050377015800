package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/asreported/cmd/asreported/cli"
	"github.com/odyssey-erp/asreported/internal/app"
	"github.com/odyssey-erp/asreported/jobs"
)

func newConsolidateCommand() *cobra.Command {
	var opts cli.ConsolidateOptions
	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Consolidate a workbook of statements into one table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("irreconcilable") {
				opts.Irreconcilable = cfg.ConsolIrreconcilable
			}
			opts.SearchWarnItems = cfg.ConsolSearchWarnItems
			opts.Logger = app.NewLogger(cfg)
			opts.Stdout = cmd.OutOrStdout()
			opts.Stderr = cmd.ErrOrStderr()
			if code := cli.ConsolidateCommand(cmd.Context(), opts); code != cli.ExitOK {
				return exitError{code: code}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "input workbook (.xlsx)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "consolidated workbook to write")
	cmd.Flags().StringVar(&opts.Debug, "debug", "", "write the failing iteration to this workbook")
	cmd.Flags().BoolVar(&opts.Irreconcilable, "irreconcilable", false, "recover from inconsistent data instead of failing")
	return cmd
}

func newEnqueueCommand() *cobra.Command {
	var payload jobs.ConsolidateWorkbookPayload
	var bumpCache bool
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Queue a workbook consolidation for the worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := jobsCLI()
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()
			if bumpCache {
				info, err := c.EnqueueCacheBump(cmd.Context())
				if err != nil {
					return err
				}
				cli.PrintTaskInfo(cmd.OutOrStdout(), info)
				return nil
			}
			info, err := c.EnqueueConsolidation(cmd.Context(), payload)
			if err != nil {
				return err
			}
			cli.PrintTaskInfo(cmd.OutOrStdout(), info)
			return nil
		},
	}
	cmd.Flags().StringVarP(&payload.InputPath, "input", "i", "", "input workbook path as seen by the worker")
	cmd.Flags().StringVarP(&payload.OutputPath, "output", "o", "", "output workbook path as seen by the worker")
	cmd.Flags().BoolVar(&payload.Irreconcilable, "irreconcilable", false, "recover from inconsistent data instead of failing")
	cmd.Flags().BoolVar(&bumpCache, "bump-cache", false, "invalidate cached results instead of queueing a workbook")
	return cmd
}

func newQueueCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "Show job queue statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := jobsCLI()
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()
			stats, err := c.InspectQueue(cmd.Context())
			if err != nil {
				return err
			}
			cli.PrintQueueStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}
}

func jobsCLI() (*cli.JobsCLI, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.RedisAddr == "" {
		return nil, errors.New("REDIS_ADDR is required for the job queue")
	}
	return cli.NewJobsCLI(cfg.RedisOptions().Asynq())
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			logger := app.NewLogger(cfg)
			if err := serve(cmd.Context(), cfg, logger); err != nil {
				logger.Error("serve", slog.Any("error", err))
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		},
	}
}
