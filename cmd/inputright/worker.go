package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jeffo777/input-right/internal/worker"
	"github.com/jeffo777/input-right/pkg/job"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Worker management commands",
}

var workerRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Accept session assignments from the dispatcher",
	Long: `Connect to the job dispatcher and run one receptionist session for every
room assigned to this worker, up to worker.max_jobs at a time.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, closer, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		defer closer.Close()

		if cfg.Worker.URL == "" {
			return fmt.Errorf("missing configuration: worker.url")
		}
		if err := cfg.ValidateAgent(); err != nil {
			return err
		}
		resolver, err := newResolver(cfg)
		if err != nil {
			return err
		}

		if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
			slog.Info("Configuration is valid",
				slog.String("worker_url", cfg.Worker.URL),
				slog.Int("max_jobs", cfg.Worker.MaxJobs))
			return nil
		}

		logger := slog.Default().With(slog.String("component", "worker"))
		w := worker.New(worker.Config{
			URL:     cfg.Worker.URL,
			Token:   cfg.Worker.Token,
			MaxJobs: cfg.Worker.MaxJobs,
			Handler: func(ctx context.Context, j *job.Job) error {
				return runSession(cfg, resolver, j, slog.Default())
			},
		}, logger)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.Info("Starting worker", slog.String("url", cfg.Worker.URL))
		return w.Run(ctx)
	},
}

func init() {
	workerRunCmd.Flags().String("url", "", "Job dispatcher WebSocket URL")
	workerRunCmd.Flags().String("token", "", "Job dispatcher token")
	workerRunCmd.Flags().Int("max-jobs", 0, "Maximum concurrent sessions")
	workerRunCmd.Flags().Bool("dry-run", false, "Dry run mode - validate config and exit")
	bindFlag(workerRunCmd, "worker.url", "url")
	bindFlag(workerRunCmd, "worker.token", "token")
	bindFlag(workerRunCmd, "worker.max_jobs", "max-jobs")

	workerCmd.AddCommand(workerRunCmd)
}
