// Package main is the entry point for the eventlink daemon.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"eventlink-go/application"
	"eventlink-go/application/handlers"
	"eventlink-go/application/session"
	"eventlink-go/core/dispatch"
	"eventlink-go/core/event"
	"eventlink-go/core/eventbus"
	"eventlink-go/domain/binding"
	"eventlink-go/domain/connection"
	"eventlink-go/domain/parsing"
	"eventlink-go/infrastructure/config"
	"eventlink-go/infrastructure/logging"
	"eventlink-go/infrastructure/metrics"
	"eventlink-go/infrastructure/repository"
	"eventlink-go/infrastructure/transport"
)

const shutdownTimeout = 15 * time.Second

func main() {
	var (
		configPath  = pflag.StringP("config", "c", "", "path to the YAML configuration file")
		logLevel    = pflag.String("log-level", "", "minimum log level (debug, info, warn, error)")
		metricsAddr = pflag.String("metrics-addr", "", "listen address of the /metrics endpoint")
	)
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load configuration:", err)
		os.Exit(1)
	}
	if pflag.CommandLine.Changed("log-level") {
		cfg.LogLevel = *logLevel
	}
	if pflag.CommandLine.Changed("metrics-addr") {
		cfg.Metrics.Addr = *metricsAddr
	}

	if err := run(cfg); err != nil {
		logging.L().Error("Exiting", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logCfg := logging.DefaultConfig()
	logCfg.Level = level
	logger, closeLog, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer closeLog()

	logger.Info("Starting eventlink", "manage_server_events", cfg.Features.ManageServerEvents)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mongoDB, err := repository.NewMongoDB(ctx, &repository.MongoDBConfig{
		URI:            cfg.Mongo.URI,
		Database:       cfg.Mongo.Database,
		ConnectTimeout: cfg.Mongo.ConnectTimeout,
		PingTimeout:    cfg.Mongo.PingTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize MongoDB: %w", err)
	}
	defer mongoDB.Close(context.Background())

	connectionRepo := repository.NewMongoConnectionRepository(mongoDB, logger)
	scopeRepo := repository.NewMongoScopeRepository(mongoDB, logger)
	findingsRepo := repository.NewMongoFindingsRepository(mongoDB, logger)
	if err := findingsRepo.EnsureIndexes(ctx); err != nil {
		return err
	}

	eventBus := eventbus.New(100, logger)
	defer eventBus.Close()

	connections := connection.NewService(connectionRepo, eventBus)
	bindings := binding.NewService(scopeRepo, eventBus)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.New(reg)

	if cfg.Metrics.Addr != "" {
		srv := metrics.NewServer(cfg.Metrics.Addr, reg)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server stopped", "error", err)
			}
		}()
		defer srv.Close()
		logger.Info("Serving metrics", "addr", cfg.Metrics.Addr)
	}

	dialer := transport.NewWebSocketDialer(&transport.WebSocketConfig{
		URL:              cfg.WebSocket.URL,
		HandshakeTimeout: cfg.WebSocket.HandshakeTimeout,
		WriteTimeout:     cfg.WebSocket.WriteTimeout,
		Credentials:      connections,
		Logger:           logger,
	})

	// Notes are logged with the session and connection attributes of the dispatch context.
	notifier := &handlers.LogNotifier{}
	registry := application.NewSubscriptionRegistry(&application.RegistryConfig{
		ManageServerEvents: cfg.Features.ManageServerEvents,
		EventBus:           eventBus,
		Bindings:           bindings,
		Connections:        connections,
		Dialer:             dialer,
		Parser:             parsing.DefaultRegistry(),
		Dispatchers: func(connectionID string) *dispatch.Dispatcher {
			d := dispatch.New(&dispatch.Config{
				Logger: logger.With("connection_id", connectionID),
				OnFailure: func(k event.Kind) {
					collector.HandlerFailed(k.String())
				},
			})
			handlers.New(&handlers.Config{
				ConnectionID: connectionID,
				Findings:     findingsRepo,
				Scopes:       bindings,
				Notifier:     notifier,
			}).Register(d)
			return d
		},
		Session: session.Config{
			KeepAliveInterval: cfg.Session.KeepAliveInterval,
			ReopenAfter:       cfg.Session.ReopenAfter,
			PruneInterval:     cfg.Session.PruneInterval,
			HistoryWindow:     cfg.Session.HistoryWindow,
			CloseTimeout:      cfg.Session.CloseTimeout,
			StopGrace:         cfg.Session.StopGrace,
		},
		Metrics: collector,
		Logger:  logger,
	})
	registry.Start()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	registry.Shutdown(shutdownCtx)

	logger.Info("Shutdown complete", "open_session", registry.HasOpenSession())
	return nil
}

var (
	_ transport.CredentialsProvider = (*connection.Service)(nil)
	_ handlers.ScopeResolver        = (*binding.Service)(nil)
)

func init() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags]\n\nStreams server events for bound scopes.\n\nFlags:\n", os.Args[0])
		pflag.PrintDefaults()
	}
}
