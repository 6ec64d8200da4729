package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/fittrack/internal/config"
	"example.com/fittrack/internal/outbox"
	httptransport "example.com/fittrack/internal/transport/http"
)

const defaultDLQBatchSize = 50

func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", "fittrack-dlqmanager")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	manager := outbox.NewDLQManager(pool, cfg.DLQMaxRetries, cfg.DLQBaseDelay, outbox.WithLogger(logger))

	metricsSrv := httptransport.NewServer(httptransport.ServerConfig{Address: cfg.MetricsAddress}, promhttp.Handler())
	go func() {
		if err := metricsSrv.Run(ctx, logger); err != nil {
			logger.Error("metrics server error", "error", err)
		}
	}()

	ticker := time.NewTicker(cfg.DLQPollInterval)
	defer ticker.Stop()

	logger.Info("dlq manager started", "interval", cfg.DLQPollInterval, "max_retries", cfg.DLQMaxRetries)

	for {
		select {
		case <-ctx.Done():
			logger.Info("dlq manager received shutdown signal")
			return
		case <-ticker.C:
			processed, err := manager.RunOnce(ctx, defaultDLQBatchSize)
			if err != nil {
				logger.Error("dlq manager error", "error", err)
			} else if processed > 0 {
				logger.Info("dlq manager processed entries", "count", processed)
			}
		}
	}
}
