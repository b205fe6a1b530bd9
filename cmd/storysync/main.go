package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"storysync/internal/config"
	"storysync/internal/coordinator"
	"storysync/internal/gateway"
	"storysync/internal/metrics"
	"storysync/internal/netcache"
	"storysync/internal/publisher"
	"storysync/internal/scheduler"
	"storysync/internal/storage/sqlite"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// Setup logger
	logger := setupLogger("info")

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	store, err := sqlite.Open(cfg.Storage.Path)
	if err != nil {
		logger.Error("failed to open story store", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	logger.Info("opened story store", "path", cfg.Storage.Path)

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	// Build the cache router and run its startup lifecycle: prefetch
	// the app shell, then sweep caches from previous versions.
	router, err := netcache.NewRouter(netcache.Config{
		Version:        cfg.Cache.Version,
		CacheRoot:      cfg.Cache.Root,
		AppOrigin:      cfg.Cache.AppOrigin,
		APIOrigin:      cfg.Cache.APIOrigin,
		MapTileOrigins: cfg.Cache.MapTileOrigins,
		FontOrigins:    cfg.Cache.FontOrigins,
		AppShell:       cfg.Cache.AppShell,
		NetworkTimeout: cfg.Cache.NetworkTimeout,
	}, nil, logger, m)
	if err != nil {
		logger.Error("failed to build cache router", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := router.Install(ctx); err != nil {
		// The shell prefetch needs the network once; a cold start
		// offline still works, just without the navigation fallback.
		logger.Warn("app shell prefetch failed", "error", err)
	}
	if err := router.Activate(); err != nil {
		logger.Error("failed to sweep stale caches", "error", err)
		os.Exit(1)
	}

	apiClient := gateway.New(gateway.Config{
		BaseURL:        cfg.API.BaseURL,
		Timeout:        cfg.API.Timeout,
		MaxAttempts:    cfg.API.Retry.MaxAttempts,
		InitialBackoff: cfg.API.Retry.InitialBackoff,
		MaxBackoff:     cfg.API.Retry.MaxBackoff,
	}, gateway.StaticToken(cfg.API.Token), router, logger)

	var events coordinator.Publisher
	if cfg.RabbitMQ.Enabled {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to rabbitmq", "error", err)
			os.Exit(1)
		}
		defer rabbitMQ.Close()
		events = rabbitMQ
	}

	svc := coordinator.NewService(apiClient, store, events, logger, m, cfg.Sync)

	sched := scheduler.NewScheduler(svc, cfg.Sync.Interval, logger)

	if cfg.Metrics.Addr != "" {
		go serveMetrics(cfg.Metrics.Addr, registry, logger)
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	logger.Info("starting story syncer",
		"api", cfg.API.BaseURL,
		"interval", cfg.Sync.Interval,
		"page_size", cfg.Sync.PageSize,
	)

	if err := sched.Start(ctx); err != nil && err != context.Canceled {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}
}

func serveMetrics(addr string, registry *prometheus.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	logger.Info("metrics listener started", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics listener failed", "error", err)
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
