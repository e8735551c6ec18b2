package main

import (
	"context"
	"errors"
	"os"
	"time"

	"budgetbook/internal/amqp"
	"budgetbook/internal/backend"
	"budgetbook/internal/cli"
	applog "budgetbook/internal/log"
	"budgetbook/internal/storage"
	"budgetbook/internal/worker"
)

func main() {
	cfg, logger := cli.MustLoad(applog.ComponentWorker)
	logger.Info("Starting budgetbook-worker")

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath, logger.WithComponent(applog.ComponentStorage).Slog())
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", applog.FieldError, err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	remote, err := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Slog()).Remote(context.Background(), cfg)
	if err != nil {
		logger.Error("Failed to initialize remote store", applog.FieldError, err)
		os.Exit(1)
	}
	defer remote.Close()

	syncWorker := worker.NewSyncWorker(repo, remote.Backend, cfg.SyncBatchSize, cfg.SyncMaxAttempts, logger.Slog())

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	logger.Info("Performing startup sync check...")
	if err := syncWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Failed startup sync check", applog.FieldError, err)
	}

	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger.WithComponent(applog.ComponentAMQP).Slog())
		if err != nil {
			logger.Error("Failed to initialize AMQP client, relying on periodic sync", applog.FieldError, err)
		} else {
			defer amqpClient.Close()
			go func() {
				if err := amqpClient.ConsumeTransactionSync(ctx, syncWorker.HandleSyncMessage); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("Message consumption failed", applog.FieldError, err)
				}
			}()
		}
	} else {
		logger.Info("AMQP_URL not set, relying on periodic sync")
	}

	go syncWorker.RunPeriodic(ctx, cfg.SyncInterval)

	<-ctx.Done()
	<-done
	logger.Info("Worker stopped")
}
