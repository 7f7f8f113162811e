package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fundergrid/research-service/internal/analytics"
	"github.com/fundergrid/research-service/internal/cache"
	"github.com/fundergrid/research-service/internal/eval"
	"github.com/fundergrid/research-service/internal/record"
	"github.com/fundergrid/research-service/internal/store"
	"github.com/fundergrid/research-service/internal/tool"
	"github.com/fundergrid/research-service/internal/traverse"
	"github.com/fundergrid/research-service/internal/validator"
	"github.com/fundergrid/research-service/pkg/config"
	"github.com/fundergrid/research-service/pkg/health"
	"github.com/fundergrid/research-service/pkg/kafka"
	"github.com/fundergrid/research-service/pkg/logger"
	"github.com/fundergrid/research-service/pkg/metrics"
	pkgpostgres "github.com/fundergrid/research-service/pkg/postgres"
	pkgredis "github.com/fundergrid/research-service/pkg/redis"
	"github.com/fundergrid/research-service/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting research service",
		"name", cfg.Identity.Name,
		"port", cfg.Server.Port,
		"records_source", cfg.Records.Source,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checker := health.NewChecker(cfg.Identity.Name)

	source, pgClient, err := buildSource(ctx, cfg)
	if err != nil {
		slog.Error("failed to prepare record source", "error", err)
		os.Exit(1)
	}
	if pgClient != nil {
		defer pgClient.Close()
		checker.Register("postgres", pgClient.Ping)
	}

	v := validator.New(
		validator.WithMaxQueryLength(cfg.Search.MaxQueryLength),
		validator.WithMaxIDLength(cfg.Search.MaxIDLength),
	)
	var recordStore *store.Store
	err = resilience.WithTimeout(ctx, 30*time.Second, "record-load", func(ctx context.Context) error {
		var loadErr error
		recordStore, loadErr = store.Load(ctx, source, store.Options{
			DefaultMethod: cfg.Search.DefaultMethod,
			Validator:     v,
		})
		return loadErr
	})
	if err != nil {
		slog.Error("failed to build record store", "error", err)
		os.Exit(1)
	}
	checker.Register("records", func(ctx context.Context) error {
		if recordStore.Len() == 0 {
			return fmt.Errorf("%w: record store is empty", health.ErrDegraded)
		}
		return nil
	})

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		m.RecordsLoaded.Set(float64(recordStore.Len()))
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownMetrics(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown failed", "error", err)
			}
		}()
	}

	traverser := traverse.New(recordStore, cfg.Search.StrictQueryFilter, nil)
	coordinator, err := eval.NewCoordinator(
		traverser,
		cfg.Evaluate.FunderVars,
		cfg.Evaluate.MaxConcurrency,
		eval.WithMetrics(m),
	)
	if err != nil {
		slog.Error("failed to build evaluation coordinator", "error", err)
		os.Exit(1)
	}

	var searchCache *cache.SearchCache
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.Dial(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			searchCache = cache.New(redisClient, cfg.Redis)
			checker.Register("redis", func(ctx context.Context) error {
				if err := redisClient.Ping(ctx); err != nil {
					return fmt.Errorf("%w: %v", health.ErrDegraded, err)
				}
				return nil
			})
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	var (
		collector  *analytics.Collector
		aggregator *analytics.Aggregator
	)
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.AnalyticsTopic)
		defer producer.Close()
		collector = analytics.NewCollector(producer, 10000)
		collector.Start(ctx)
		defer collector.Close()

		aggregator = analytics.NewAggregator()
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.AnalyticsTopic, aggregator.Handle)
		aggregator.Attach(consumer)
		go func() {
			if err := aggregator.Start(ctx); err != nil {
				slog.Error("analytics aggregator error", "error", err)
			}
		}()
		slog.Info("tool analytics enabled", "topic", cfg.Kafka.AnalyticsTopic)
	}

	handler := tool.New(recordStore, coordinator, tool.Options{
		Cache:        searchCache,
		Collector:    collector,
		Metrics:      m,
		Name:         cfg.Identity.Name,
		Instructions: cfg.Identity.Instructions,
	})
	router := tool.NewRouter(handler, tool.RouterOptions{
		Checker:        checker,
		Aggregator:     aggregator,
		Metrics:        m,
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		slog.Info("tool surface listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown failed", "error", err)
	}
}

// buildSource picks the record source from config. The postgres connection
// is retried with backoff since the database may still be starting.
func buildSource(ctx context.Context, cfg *config.Config) (record.Source, *pkgpostgres.Client, error) {
	switch cfg.Records.Source {
	case "postgres":
		var client *pkgpostgres.Client
		err := resilience.Retry(ctx, "postgres-connect", resilience.RetryConfig{MaxAttempts: 5}, func() error {
			var err error
			client, err = pkgpostgres.Open(ctx, cfg.Postgres)
			return err
		})
		if err != nil {
			return nil, nil, err
		}
		return record.PostgresSource{Client: client, Table: cfg.Records.Table}, client, nil
	case "none":
		return record.MemorySource{}, nil, nil
	default:
		return record.FileSource{
			Path:          cfg.Records.Path,
			FailOnMissing: cfg.Records.FailOnMissing,
		}, nil, nil
	}
}
