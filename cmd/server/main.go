package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/akl-logistics/dispatchdesk/internal/config"
	"github.com/akl-logistics/dispatchdesk/internal/dispatch"
	"github.com/akl-logistics/dispatchdesk/internal/events"
	"github.com/akl-logistics/dispatchdesk/internal/history"
	"github.com/akl-logistics/dispatchdesk/internal/logging"
	"github.com/akl-logistics/dispatchdesk/internal/orderapi"
	"github.com/akl-logistics/dispatchdesk/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"backend", cfg.Backend.BaseURL,
		"workers", cfg.Dispatch.Workers,
		"max_concurrent_batches", cfg.Dispatch.MaxConcurrentBatches,
		"history_enabled", cfg.Database.URL != "",
		"events_enabled", cfg.Events.Enabled(),
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	// Root context for startup and background workers; cancelled on shutdown.
	ctx, cancelBackground := context.WithCancel(context.Background())
	defer cancelBackground()

	// Order-management backend client
	client := orderapi.NewClient(cfg.Backend.BaseURL, cfg.Backend.APIKey,
		orderapi.WithHTTPClient(&http.Client{Timeout: cfg.Backend.Timeout}),
	)

	// Recorders observe finished batches: history rows, Kafka events.
	var recorders []dispatch.Recorder

	// Batch history is optional; no DATABASE_URL means no persistence.
	var store *history.Store
	if cfg.Database.URL != "" {
		poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
		if err != nil {
			slog.Error("failed to parse database URL", "error", err)
			os.Exit(1)
		}

		// Apply pool configuration from config
		poolConfig.MaxConns = int32(cfg.Database.MaxConns)
		poolConfig.MinConns = int32(cfg.Database.MinConns)
		poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
		poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		// Verify connection
		if err := pool.Ping(ctx); err != nil {
			slog.Error("failed to ping database", "error", err)
			os.Exit(1)
		}

		// Log which database we connected to
		if u, err := url.Parse(cfg.Database.URL); err == nil {
			slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
		} else {
			slog.Info("connected to database")
		}

		store = history.NewStore(pool, slog.Default())
		if err := store.EnsureSchema(ctx); err != nil {
			slog.Error("failed to create history schema", "error", err)
			os.Exit(1)
		}
		recorders = append(recorders, store)

		// Prune old history in the background for as long as we run.
		go store.StartRetentionSweeper(ctx, history.RetentionConfig{
			MaxAge:        cfg.Database.HistoryRetention,
			SweepInterval: cfg.Database.HistorySweepInterval,
		})
	}

	// Batch events are optional; no brokers means no publisher.
	if cfg.Events.Enabled() {
		publisher := events.NewPublisher(cfg.Events.Brokers, cfg.Events.Topic, slog.Default())
		defer publisher.Close()
		recorders = append(recorders, publisher)
		slog.Info("batch events enabled",
			"topic", cfg.Events.Topic,
			"brokers", len(cfg.Events.Brokers),
		)
	}

	// Batch service
	service := dispatch.NewService(client, dispatch.ServiceConfig{
		Workers:              cfg.Dispatch.Workers,
		LineTimeout:          cfg.Dispatch.LineTimeout,
		MaxConcurrentBatches: cfg.Dispatch.MaxConcurrentBatches,
		MaxSlotWait:          cfg.Dispatch.MaxSlotWait,
		BatchTimeout:         cfg.Dispatch.BatchTimeout,
		ResultRetention:      cfg.Dispatch.ResultRetention,
	}, slog.Default(), recorders...)

	// Create server with config
	var hist web.HistoryStore
	if store != nil {
		hist = store
	}
	server := web.NewServer(service, client, hist, cfg)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelBackground()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Wait for active batches to complete (with timeout)
		status := service.LimiterStatus()
		if status.Active > 0 {
			slog.Info("waiting for batches to complete", "active", status.Active)
			if err := service.WaitForBatches(shutdownCtx); err != nil {
				slog.Warn("batches did not complete in time", "error", err)
			} else {
				slog.Info("all batches completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(cfg.Server.Addr()); err != nil {
		slog.Info("server stopped", "error", err)
	}
}
