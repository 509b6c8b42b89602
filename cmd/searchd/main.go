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

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/indexer/registry"
	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/source"
	"github.com/Adithya-Monish-Kumar-K/devsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/devsearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/devsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/devsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/devsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/devsearch/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/devsearch/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/devsearch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/devsearch/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting devsearch", "port", cfg.Server.Port, "indexes", len(cfg.Indexer.Indexes))

	if err := run(cfg); err != nil {
		slog.Error("devsearch failed", "error", err)
		os.Exit(1)
	}
	slog.Info("devsearch stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, prometheus.DefaultGatherer)
		defer shutdownMetrics(context.Background())
	}

	reg := registry.New(executor.New(cfg.Search), registry.WithMetrics(m))
	engine, err := indexer.NewEngine(reg, cfg.Indexer)
	if err != nil {
		return fmt.Errorf("starting indexer: %w", err)
	}
	defer func() {
		if err := engine.Close(); err != nil {
			slog.Error("final snapshot failed", "error", err)
		}
	}()

	checker := health.NewChecker()
	checker.Register("indexes", func(ctx context.Context) health.ComponentHealth {
		names := reg.IndexNames()
		if len(names) == 0 {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "no indexes"}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d indexes", len(names))}
	})

	if cfg.Source.Enabled {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			return fmt.Errorf("connecting to document source: %w", err)
		}
		defer db.Close()
		checker.Register("postgres", health.PingCheck(db.Ping, false))

		loadCtx, cancel := ctx, context.CancelFunc(func() {})
		if cfg.Source.LoadTimeout > 0 {
			loadCtx, cancel = context.WithTimeout(ctx, cfg.Source.LoadTimeout)
		}
		n, err := source.Bootstrap(loadCtx, reg, source.NewLoader(db.DB, cfg.Source).Loads(), resilience.RetryConfig{})
		cancel()
		if err != nil {
			return fmt.Errorf("bootstrapping indexes: %w", err)
		}
		slog.Info("indexes bootstrapped from postgres", "documents", n)
	}

	queryCache, closeCache := setupCache(cfg.Redis, m, checker)
	defer closeCache()
	if queryCache != nil {
		reg.OnChange(func(ev registry.ChangeEvent) {
			purge := ev.Kind != registry.ChangeDocuments
			if err := queryCache.InvalidateIndex(context.Background(), ev.Index, purge); err != nil {
				slog.Warn("cache invalidation failed", "index", ev.Index, "error", err)
			}
		})
	}

	agg := analytics.NewAggregator()
	reg.OnChange(func(ev registry.ChangeEvent) {
		if ev.Kind == registry.ChangeDocuments {
			agg.RecordDocuments(len(ev.IDs))
		}
	})
	var publisher analytics.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer producer.Close()
		publisher = producer

		docConsumer := consumer.New(kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentEvents,
			consumer.HandleMessage(reg, m), kafka.FromBeginning()))
		go func() {
			if err := docConsumer.Start(ctx); err != nil {
				slog.Error("document consumer stopped", "error", err)
			}
		}()
		slog.Info("kafka enabled",
			"brokers", cfg.Kafka.Brokers,
			"document_topic", cfg.Kafka.Topics.DocumentEvents,
			"analytics_topic", cfg.Kafka.Topics.AnalyticsEvents,
		)
	}
	collector := analytics.NewCollector(agg, publisher, m, 10000)
	collector.Start(ctx)
	defer collector.Close()

	engine.StartRebuildLoop(ctx)

	mux := http.NewServeMux()
	handler.New(reg, queryCache, collector).Routes(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	// Metrics wraps the mux directly so it sees the matched route pattern.
	var chain http.Handler = middleware.Metrics(m)(mux)
	chain = middleware.Timeout(cfg.Server.RequestTimeout)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Shutdown drains in-flight requests; the deferred closers must wait for
	// it, since ListenAndServe returns as soon as draining starts.
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("devsearch listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	<-shutdownDone
	return nil
}

// setupCache connects to Redis when configured. An unreachable Redis leaves
// caching disabled rather than failing startup.
func setupCache(cfg config.RedisConfig, m *metrics.Metrics, checker *health.Checker) (*cache.QueryCache, func()) {
	if cfg.Addr == "" {
		return nil, func() {}
	}
	client, err := pkgredis.NewClient(cfg)
	if err != nil {
		slog.Warn("redis unavailable, search caching disabled", "error", err)
		return nil, func() {}
	}
	checker.Register("redis", health.PingCheck(client.Ping, false))

	breaker := resilience.NewCircuitBreaker("redis", resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		OnStateChange: func(name string, from, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
	slog.Info("search cache enabled", "addr", cfg.Addr, "ttl", cfg.CacheTTL)
	return cache.New(client, cfg.CacheTTL, breaker, m), func() {
		if err := client.Close(); err != nil {
			slog.Error("redis close failed", "error", err)
		}
	}
}
