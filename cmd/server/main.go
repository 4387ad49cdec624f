package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Whooptido-App/ASR-Captions/internal/command"
	"github.com/Whooptido-App/ASR-Captions/internal/config"
	"github.com/Whooptido-App/ASR-Captions/internal/engine"
	"github.com/Whooptido-App/ASR-Captions/internal/metrics"
	"github.com/Whooptido-App/ASR-Captions/internal/server"
	"github.com/Whooptido-App/ASR-Captions/internal/session"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "asr-captions"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.String("engine_binary", cfg.Engine.BinaryPath),
		slog.String("models_dir", cfg.Engine.ModelsDir),
		slog.String("default_model", cfg.Engine.DefaultModel),
		slog.String("default_language", cfg.Engine.DefaultLanguage),
		slog.Int("max_threads", cfg.Engine.MaxThreads),
		slog.String("scratch_dir", cfg.Session.ScratchDir),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Initialize engine invoker with its process registry
	registry := engine.NewRegistry(logger)
	invoker, err := engine.NewInvoker(engine.Config{
		BinaryPath: cfg.Engine.BinaryPath,
		ModelsDir:  cfg.Engine.ModelsDir,
		ScratchDir: cfg.Session.ScratchDir,
		MaxThreads: cfg.Engine.MaxThreads,
	}, registry, logger)
	if err != nil {
		logger.Error("Failed to create engine invoker", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Engine invoker initialized")

	// Initialize session manager
	sessionMgr, err := session.NewManager(session.Config{
		ScratchDir:      cfg.Session.ScratchDir,
		DefaultLanguage: cfg.Engine.DefaultLanguage,
		DefaultModel:    cfg.Engine.DefaultModel,
	}, invoker, logger)
	if err != nil {
		logger.Error("Failed to create session manager", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Session manager initialized")

	// The command channel is this process's stdin/stdout; logs go to stderr.
	transport := command.NewStdioTransport(os.Stdin, os.Stdout)
	dispatcher := command.NewDispatcher(sessionMgr, transport, logger, appMetrics)

	// Initialize HTTP API server (if enabled)
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, sessionMgr, appMetrics)
		logger.Info("HTTP API server initialized",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		)

		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Run the command loop. It returns when the host closes stdin.
	runErr := make(chan error, 1)
	go func() {
		runErr <- dispatcher.Run(ctx)
	}()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, processing commands...")

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	case err := <-runErr:
		if err != nil && err != context.Canceled {
			logger.Error("Command loop failed", slog.String("error", err.Error()))
		} else {
			logger.Info("Command stream closed")
		}
	}

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	// Stop session manager (cancel sessions, terminate engine subprocesses,
	// delete scratch files)
	sessionMgr.Stop()

	// Final engine statistics
	stats := sessionMgr.GetInvokerStats()
	logger.Info("Final engine statistics",
		slog.Uint64("total_invocations", stats.TotalInvocations),
		slog.Uint64("successful", stats.Successful),
		slog.Uint64("failed", stats.Failed),
		slog.Uint64("cancelled", stats.Cancelled),
		slog.Float64("success_rate", stats.SuccessRate),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// stdout carries the ack stream, so logs never go there.
	var output *os.File
	switch cfg.Output {
	case "stderr", "stdout", "":
		output = os.Stderr
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stderr\n", cfg.Output, err)
			output = os.Stderr
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		// Default to text format
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
