package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/mandippal/matchbook/api"
	"github.com/mandippal/matchbook/internal/config"
	"github.com/mandippal/matchbook/internal/database"
	"github.com/mandippal/matchbook/internal/metrics"
	"github.com/mandippal/matchbook/internal/poller"
	"github.com/mandippal/matchbook/internal/version"
	"github.com/mandippal/matchbook/internal/writer"
	"github.com/mandippal/matchbook/stream"
)

func main() {
	configPath := flag.String("config", "configs/recorder.local.yaml", "path to config file")
	flag.Parse()

	// .env is optional; config YAML expands ${VAR} references.
	_ = godotenv.Load()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting recorder",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"api_url", cfg.API.RestURL,
		"markets", len(cfg.Markets),
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Timescale.Host,
		"port", cfg.Database.Timescale.Port,
		"database", cfg.Database.Timescale.Name,
	)

	db, err := database.Connect(ctx, cfg.Database.Timescale)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	logger.Info("database connected")

	// Create REST API client and check availability
	apiClient, err := api.NewClient(
		cfg.API.RestURL,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, time.Second),
	)
	if err != nil {
		logger.Error("failed to create api client", "error", err)
		os.Exit(1)
	}

	health, err := apiClient.GetHealth(ctx)
	if err != nil {
		logger.Error("failed to reach api", "error", err)
		os.Exit(1)
	}
	logger.Info("api reachable", "status", health.Status, "api_version", health.Version)

	// Create stream client
	streamCfg := stream.Config{
		URL:                  cfg.API.WSURL,
		PingInterval:         cfg.Stream.PingInterval,
		ReconnectBaseDelay:   cfg.Stream.ReconnectBaseDelay,
		ReconnectMaxDelay:    cfg.Stream.ReconnectMaxDelay,
		MaxReconnectAttempts: cfg.Stream.MaxReconnectAttempts,
		BufferSize:           cfg.Stream.BufferSize,
		Logger:               logger,
	}
	client, err := stream.New(streamCfg)
	if err != nil {
		logger.Error("failed to create stream client", "error", err)
		os.Exit(1)
	}
	client.OnError(func(err error) {
		logger.Warn("stream error", "error", err)
	})
	client.OnDisconnect(func() {
		logger.Warn("stream disconnected", "state", client.State())
	})

	// Buffers between the stream and the batch writers
	tradeBuf := writer.NewGrowableBuffer[writer.TradeEvent](cfg.Writers.BufferSize)
	snapshotBuf := writer.NewGrowableBuffer[writer.SnapshotEvent](cfg.Writers.BufferSize)

	writerCfg := writer.WriterConfig{
		BatchSize:     cfg.Writers.BatchSize,
		FlushInterval: cfg.Writers.FlushInterval,
	}
	tradeWriter := writer.NewTradeWriter(writerCfg, tradeBuf, db, logger)
	snapshotWriter := writer.NewSnapshotWriter(writerCfg, snapshotBuf, db, logger)

	if err := tradeWriter.Start(ctx); err != nil {
		logger.Error("failed to start trade writer", "error", err)
		os.Exit(1)
	}
	if err := snapshotWriter.Start(ctx); err != nil {
		logger.Error("failed to start snapshot writer", "error", err)
		os.Exit(1)
	}

	// Subscribe before connecting; subscriptions replay on (re)connect.
	// Book views are sampled by the poller rather than persisted per update,
	// so the book handler itself has nothing to do.
	for _, market := range cfg.Markets {
		client.SubscribeBook(market, cfg.Stream.BookDepth, func(stream.BookView) {})
		client.SubscribeTrades(market, func(t stream.Trade) {
			tradeBuf.Send(writer.TradeEvent{Trade: t, ReceivedAt: time.Now()})
		})
	}

	if err := client.Connect(ctx); err != nil {
		logger.Error("failed to connect stream", "error", err)
		os.Exit(1)
	}
	defer client.Disconnect()

	// Snapshot poller captures synced book views on a timer
	snapshotPoller := poller.New(
		poller.Config{Interval: cfg.Poller.Interval},
		client,
		cfg.Markets,
		snapshotBuf,
		logger,
	)
	if err := snapshotPoller.Start(ctx); err != nil {
		logger.Error("failed to start poller", "error", err)
		os.Exit(1)
	}

	// Metrics server
	metricsServer := metrics.NewServer(
		metrics.Config{Port: cfg.Metrics.Port, Path: cfg.Metrics.Path},
		client,
		logger,
	)
	metricsServer.RegisterWriter("trades", tradeWriter)
	metricsServer.RegisterWriter("snapshots", snapshotWriter)

	// Health server
	healthServer := &http.Server{
		Addr:    ":8080",
		Handler: createHealthHandler(db, client, logger),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := metricsServer.Start(); err != nil {
			return err
		}
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return metricsServer.Stop(shutdownCtx)
	})
	g.Go(func() error {
		go func() {
			<-gctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			healthServer.Shutdown(shutdownCtx)
		}()
		logger.Info("health server started", "addr", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	logger.Info("recorder running",
		"instance_id", cfg.Instance.ID,
		"health_url", "http://localhost:8080/health",
		"metrics_url", fmt.Sprintf("http://localhost:%d%s", cfg.Metrics.Port, cfg.Metrics.Path),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	snapshotPoller.Stop(shutdownCtx)
	client.Disconnect()
	tradeWriter.Stop(shutdownCtx)
	snapshotWriter.Stop(shutdownCtx)

	if err := g.Wait(); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("recorder stopped")
}

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(db *pgxpool.Pool, client *stream.Client, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		// Check database
		if err := db.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["timescaledb"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["timescaledb"] = "connected"
		}

		// Check stream
		stats := client.Stats()
		health.Components["stream"] = map[string]any{
			"state":         stats.State.String(),
			"messages":      stats.MessagesReceived,
			"sequence_gaps": stats.SequenceGaps,
			"reconnects":    stats.Reconnects,
			"subscriptions": stats.Subscriptions,
		}
		if stats.State != stream.Connected {
			health.Status = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	return mux
}
