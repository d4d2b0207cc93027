// Package main is the entry point for the cyclearb arbitrage engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/fdemarco/cyclearb/business/arbitrage"
	"github.com/fdemarco/cyclearb/business/execution"
	"github.com/fdemarco/cyclearb/business/marketdata"
	"github.com/fdemarco/cyclearb/business/risk"
	"github.com/fdemarco/cyclearb/internal/apm"
	"github.com/fdemarco/cyclearb/internal/config"
	"github.com/fdemarco/cyclearb/internal/health"
	"github.com/fdemarco/cyclearb/internal/metrics"
	"github.com/fdemarco/cyclearb/internal/monolith"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("cyclearb %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(os.Stderr, "received shutdown signal: %v\n", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logLevel := slog.LevelInfo
	switch cfg.App.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})).
		With(slog.String("app", cfg.App.Name))
	log.Info("starting cycle arbitrage engine",
		slog.String("version", version),
		slog.String("environment", cfg.App.Environment),
		slog.Bool("dry_run", cfg.Execution.DryRun),
	)

	var traceProvider apm.TraceProvider
	if cfg.Telemetry.Enabled {
		if cfg.Telemetry.ServiceName != "" {
			os.Setenv("OTEL_SERVICE_NAME", cfg.Telemetry.ServiceName)
		}
		if cfg.Telemetry.OTLPEndpoint != "" {
			os.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Telemetry.OTLPEndpoint)
		}

		traceProvider = apm.NewTraceProvider(log,
			apm.WithProvider(apm.Provider(cfg.Telemetry.TraceProvider), log))
		log.Info("tracing initialized", slog.String("provider", cfg.Telemetry.TraceProvider))

		if _, err := metrics.NewMetricProvider(
			metrics.WithServiceName(cfg.Telemetry.ServiceName),
			metrics.WithProviderConfig(metrics.NewPrometheusConfig()),
		); err != nil {
			return fmt.Errorf("failed to initialize metrics: %w", err)
		}

		port := cfg.Telemetry.PrometheusPort
		if port == 0 {
			port = 2223
		}
		go func() {
			if err := metrics.ServePrometheusMetrics(metrics.WithPort(strconv.Itoa(port))); err != nil {
				log.Error("prometheus metrics server failed", slog.Any("error", err))
			}
		}()
		log.Info("prometheus metrics server started", slog.Int("port", port))
	}
	defer func() {
		if traceProvider != nil {
			traceProvider.Stop()
		}
	}()

	healthServer := health.NewServer(cfg.App.HealthPort, version)
	if err := healthServer.Start(); err != nil {
		log.Warn("failed to start health server", slog.Any("error", err))
	} else {
		log.Info("health server started", slog.Int("port", cfg.App.HealthPort))
	}
	defer healthServer.Stop(context.Background())

	mono, err := monolith.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create monolith: %w", err)
	}
	defer mono.Close()

	md := &marketdata.Module{}

	// Dependency order: market data feeds first, then risk and execution
	// services, then the detection pipeline that drives them.
	modules := []monolith.Module{
		md,
		&risk.Module{},
		&execution.Module{},
		&arbitrage.Module{},
	}

	if err := mono.RegisterModules(modules...); err != nil {
		return fmt.Errorf("failed to register modules: %w", err)
	}

	if err := mono.StartModules(ctx, modules...); err != nil {
		return fmt.Errorf("failed to start modules: %w", err)
	}

	for name, check := range md.HealthChecks(cfg.Detector.StalenessWindow) {
		healthServer.RegisterCheck(name, check)
	}

	log.Info("all modules started, scanning for arbitrage cycles")

	<-ctx.Done()

	log.Info("shutting down")
	md.Shutdown()

	return nil
}
