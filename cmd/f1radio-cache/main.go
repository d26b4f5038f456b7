// Command f1radio-cache is a caching proxy for Formula 1 team radio
// data from the OpenF1 API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/lmittmann/tint"

	"github.com/trackside/f1radio-cache/server"
	"github.com/trackside/f1radio-cache/telemetry"
)

var version = "dev"

var cli struct {
	Address            string           `help:"Address to listen on." default:":8000"`
	UpstreamURL        string           `help:"OpenF1 API base URL." env:"OPENF1_BASE_URL"`
	CacheDir           string           `help:"Directory for cached JSON documents." default:"./data"`
	PurgeMaxAge        time.Duration    `help:"Remove cache entries older than this (0 to disable)." default:"720h"`
	PurgeCheckInterval time.Duration    `help:"How often to run purge sweeps." default:"1h"`
	LogLevel           string           `help:"Log level." enum:"debug,info,warn,error" default:"info"`
	LogFormat          string           `help:"Log format." enum:"text,json" default:"text"`
	MetricsEnabled     bool             `help:"Expose Prometheus metrics on /metrics."`
	OTLPEndpoint       string           `help:"OTLP gRPC endpoint for metrics export." env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Version            kong.VersionFlag `help:"Print version and exit."`
}

func main() {
	kong.Parse(&cli,
		kong.Name("f1radio-cache"),
		kong.Description("Caching proxy for OpenF1 team radio data."),
		kong.Vars{"version": version},
	)

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger, err := buildLogger()
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	shutdownMetrics, err := telemetry.InitMetrics(context.Background(), telemetry.MetricsConfig{
		ServiceName:      "f1radio-cache",
		ServiceVersion:   version,
		OTLPEndpoint:     cli.OTLPEndpoint,
		EnablePrometheus: cli.MetricsEnabled,
	})
	if err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(ctx); err != nil {
			logger.Warn("metrics shutdown failed", "error", err)
		}
	}()

	cfg := server.Config{
		Address:            cli.Address,
		UpstreamBaseURL:    cli.UpstreamURL,
		CacheDir:           cli.CacheDir,
		PurgeMaxAge:        cli.PurgeMaxAge,
		PurgeCheckInterval: cli.PurgeCheckInterval,
		Logger:             logger,
	}

	srv, err := server.New(cfg)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	// Handle shutdown signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	logger.Info("server started",
		"address", srv.Address(),
		"cache_dir", cli.CacheDir,
		"version", version,
	)

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func buildLogger() (*slog.Logger, error) {
	var level slog.Level
	switch cli.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("invalid log level: %s", cli.LogLevel)
	}

	var handler slog.Handler
	switch cli.LogFormat {
	case "text":
		handler = tint.NewHandler(os.Stdout, &tint.Options{Level: level})
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	default:
		return nil, fmt.Errorf("invalid log format: %s", cli.LogFormat)
	}
	return slog.New(handler), nil
}
