package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/fittrack/internal/api"
	"example.com/fittrack/internal/auth"
	"example.com/fittrack/internal/config"
	"example.com/fittrack/internal/consumer"
	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/login"
	"example.com/fittrack/internal/observability"
	"example.com/fittrack/internal/outbox"
	"example.com/fittrack/internal/persistence/memory"
	"example.com/fittrack/internal/persistence/postgres"
	"example.com/fittrack/internal/recommendation"
	httptransport "example.com/fittrack/internal/transport/http"
)

func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", "fittrack-api")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		service  *domain.Service
		recStore recommendation.Store
		memRepo  *memory.Repository
		cleanup  []func()
	)

	switch cfg.StorageDriver {
	case config.StorageMemory:
		memRepo = memory.NewRepository()
		service = domain.NewService(memRepo, memRepo)
		recStore = memory.NewRecommendationStore()
		logger.Info("using in-memory storage")
	default:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)

		repo := postgres.NewRepository(pool)
		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
		cleanup = append(cleanup, func() { _ = producer.Close() })

		registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
		dispatcher := outbox.NewDispatcher(pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize, outbox.WithLogger(logger))
		go dispatcher.Start(ctx)
		cleanup = append(cleanup, dispatcher.Wait)

		service = domain.NewService(repo, repo)
		recStore = postgres.NewRecommendationStore(pool)
	}

	recs := recommendation.NewService(recStore, newGenerator(cfg, logger))
	if memRepo != nil {
		// Without Kafka the recommendation handler runs in-process.
		bus := consumer.NewLocalBus(consumer.NewRecommendationHandler(recs, logger), 128, logger)
		go bus.Start(context.Background())
		cleanup = append(cleanup, bus.Close)
		memRepo.SetEventHook(bus.Hook)
	}

	authCfg := auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}
	flow := login.NewFlow(cfg.OAuth, auth.NewIssuer(authCfg), cfg.FrontendURL, cfg.TokenTTL, login.WithLogger(logger))

	handler := api.NewHandler(service, recs, api.WithLogger(logger), api.WithLogin(flow))
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	authMiddleware := auth.NewMiddleware(authCfg)
	requestLogger := observability.RequestLogger(logger)
	cors := observability.CORS(cfg.FrontendURL)

	server := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.HTTPAddress),
		requestLogger(cors(authMiddleware.Wrap(mux))))

	if err := server.Run(ctx, logger); err != nil {
		logger.Error("server error", "error", err)
	}
	stop()

	for i := len(cleanup) - 1; i >= 0; i-- {
		cleanup[i]()
	}
}

// newGenerator prefers the AI generator when an API key is configured.
func newGenerator(cfg config.Config, logger *slog.Logger) recommendation.Generator {
	rc := cfg.Recommendations
	if rc.GeminiAPIKey == "" {
		return recommendation.NewRuleGenerator()
	}
	return recommendation.NewGeminiGenerator(rc.GeminiURL, rc.GeminiAPIKey, rc.Timeout, recommendation.WithLogger(logger))
}
