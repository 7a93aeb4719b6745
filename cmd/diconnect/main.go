package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloudyy74/diconnect-pairup/internal/app"
	"github.com/cloudyy74/diconnect-pairup/internal/config"
	"github.com/cloudyy74/diconnect-pairup/internal/models"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "diconnect",
		Short:         "DIConnect pair-up matching service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config_path", "", "path to config (defaults to CONFIG_PATH)")

	rootCmd.AddCommand(
		serveCmd(&configPath),
		pairUpCmd(&configPath),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the admin API and run the daily matching scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, log, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			go a.MustRun(ctx)

			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			a.Close(shutdownCtx)
			log.Info("server stopped")
			return nil
		},
	}
}

func pairUpCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pairup",
		Short: "Pair-up matching jobs",
	}

	var frequency, instanceID string
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Prepare and enqueue pair-up batches for one frequency",
		RunE: func(cmd *cobra.Command, args []string) error {
			freq, err := models.ParseMatchingFrequency(frequency)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, _, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			inst, err := a.RunMatching(ctx, freq, instanceID)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(inst); err != nil {
				return err
			}
			if inst.Status == models.InstanceStatusFailed {
				return fmt.Errorf("matching run %s failed: %s", inst.ID, inst.Error)
			}
			return nil
		},
	}
	runCmd.Flags().StringVar(&frequency, "frequency", "Weekly", "matching frequency (Weekly or Monthly)")
	runCmd.Flags().StringVar(&instanceID, "instance-id", "", "orchestration instance id; a run with an existing id resumes it")

	workerCmd := &cobra.Command{
		Use:   "match-worker",
		Short: "Consume pair-up batches and publish matched pairs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, _, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			return a.RunMatchWorker(ctx)
		},
	}

	cmd.AddCommand(runCmd, workerCmd)
	return cmd
}

func newApp(ctx context.Context, configPath string) (*app.App, *slog.Logger, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	log, err := newLogger(cfg.Env)
	if err != nil {
		return nil, nil, err
	}
	log.Info("starting diconnect pair-up", slog.String("env", cfg.Env))
	log.Debug("debug messages are enabled")

	a, err := app.NewApp(ctx, cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create app: %w", err)
	}
	return a, log, nil
}

func newLogger(env string) (*slog.Logger, error) {
	var log *slog.Logger

	opts := &slog.HandlerOptions{AddSource: true}

	switch env {
	case "local":
		opts.Level = slog.LevelDebug
		log = slog.New(slog.NewTextHandler(os.Stdout, opts))
	case "dev":
		opts.Level = slog.LevelDebug
		log = slog.New(slog.NewJSONHandler(os.Stdout, opts))
	case "prod":
		opts.Level = slog.LevelInfo
		log = slog.New(slog.NewJSONHandler(os.Stdout, opts))
	default:
		return nil, fmt.Errorf("unknown env %q", env)
	}

	return log, nil
}
