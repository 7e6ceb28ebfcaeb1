package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teemow/slotbook/internal/instrumentation"
	"github.com/teemow/slotbook/internal/logging"
	"github.com/teemow/slotbook/internal/notify"
	"github.com/teemow/slotbook/internal/server"
)

func newWorkerCmd() *cobra.Command {
	cfg := &notifyConfig{Queue: queueAsynq}

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Process notification tasks from Redis",
		Long: `Run a standalone notification worker for the asynq queue.

Use it together with 'serve --queue asynq --embedded-worker=false' to send
invites and confirmations from a separate process. Tasks are read from Redis
(--redis-addr) and mail is sent through Gmail with the stored credential.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.loadEnv(cmd); err != nil {
				return err
			}
			return runWorker(cfg)
		},
	}

	cfg.bindFlags(cmd, false)
	return cmd
}

func runWorker(cfg *notifyConfig) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if globals.GoogleClientID == "" || globals.GoogleClientSecret == "" {
		return fmt.Errorf("--google-client-id and --google-client-secret are required")
	}

	logger := logging.WithComponent(globals.logger(), "worker")
	slog.SetDefault(logger)

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	instrConfig.Logger = logger
	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		_ = provider.Shutdown(shutdownCtx)
	}()
	metrics := provider.Metrics()

	store, closeStore, err := globals.openStandaloneStore()
	if err != nil {
		return err
	}
	defer closeStore()
	session := newSession(store, globals.oauthConfig(true), logger, metrics)

	exec, err := cfg.executor(context.WithoutCancel(ctx), session, logger, metrics)
	if err != nil {
		return err
	}

	worker := notify.NewWorker(notify.WorkerConfig{
		Redis:       globals.asynqRedisOpt(),
		Queue:       cfg.QueueName,
		Concurrency: cfg.Workers,
		Logger:      logger,
	}, exec.Execute)
	if err := worker.Start(); err != nil {
		return fmt.Errorf("failed to start notification worker: %w", err)
	}
	logger.Info("Notification worker started",
		slog.String("redis", globals.RedisAddr),
		slog.String("queue", cfg.QueueName),
		slog.Int("concurrency", cfg.Workers),
	)

	<-ctx.Done()
	logger.Info("Shutting down notification worker")
	worker.Shutdown()
	return nil
}
