package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"example.com/fittrack/internal/config"
	"example.com/fittrack/internal/consumer"
	"example.com/fittrack/internal/persistence/postgres"
	"example.com/fittrack/internal/recommendation"
	httptransport "example.com/fittrack/internal/transport/http"
)

func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", "fittrack-consumer")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	var generator recommendation.Generator = recommendation.NewRuleGenerator()
	if rc := cfg.Recommendations; rc.GeminiAPIKey != "" {
		generator = recommendation.NewGeminiGenerator(rc.GeminiURL, rc.GeminiAPIKey, rc.Timeout, recommendation.WithLogger(logger))
	}
	service := recommendation.NewService(postgres.NewRecommendationStore(pool), generator)
	handler := consumer.NewRecommendationHandler(service, logger)

	metricsSrv := httptransport.NewServer(httptransport.ServerConfig{Address: cfg.MetricsAddress}, promhttp.Handler())
	go func() {
		if err := metricsSrv.Run(ctx, logger); err != nil {
			logger.Error("metrics server error", "error", err)
		}
	}()

	var wg sync.WaitGroup
	for _, topic := range cfg.ConsumerTopics {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:         cfg.KafkaBrokers,
			GroupID:         cfg.ConsumerGroupID,
			Topic:           topic,
			MinBytes:        1e3,
			MaxBytes:        10e6,
			CommitInterval:  time.Second,
			RetentionTime:   24 * time.Hour,
			ReadLagInterval: -1,
		})

		topicLogger := logger.With("topic", topic)
		proc := consumer.NewProcessor(reader, handler, consumer.WithLogger(topicLogger))

		wg.Add(1)
		go func(r *kafka.Reader) {
			defer wg.Done()
			defer r.Close()

			topicLogger.Info("consumer started", "group", cfg.ConsumerGroupID)
			if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				topicLogger.Error("consumer stopped with error", "error", err)
			}
		}(reader)
	}

	<-ctx.Done()
	logger.Info("consumer shutdown requested")
	wg.Wait()
}
