// Package main is the entry point for the Cascade admin server.
// It exposes the version index and CAS introspection over HTTP,
// together with health and Prometheus metrics endpoints.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/prn-tf/cascade-store/internal/backend/factory"
	"github.com/prn-tf/cascade-store/internal/cache"
	"github.com/prn-tf/cascade-store/internal/cas"
	"github.com/prn-tf/cascade-store/internal/chunk"
	"github.com/prn-tf/cascade-store/internal/config"
	"github.com/prn-tf/cascade-store/internal/domain"
	"github.com/prn-tf/cascade-store/internal/handler"
	"github.com/prn-tf/cascade-store/internal/metrics"
	"github.com/prn-tf/cascade-store/internal/service"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	logger.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Str("backend", cfg.Backend.Driver).
		Msg("starting Cascade server")

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server failed")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(registry)
	}

	b, err := factory.New(ctx, cfg.Backend, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	chunks, err := cas.NewStore(b, cas.Options{
		Compression: cfg.CAS.Compression,
		Algorithm:   domain.Algorithm(cfg.CAS.FingerprintAlgorithm),
	}, m, logger)
	if err != nil {
		return err
	}
	if cfg.CAS.CacheSize > 0 {
		chunks = cas.NewCachedStore(chunks, cache.NewCache(cfg.CAS.CacheSize))
	}

	writer := chunk.NewWriter(chunks, cfg.Chunker.Workers, cfg.Chunker.WriteBatch, logger)
	files := service.NewFileService(b, chunks, writer, service.Options{
		ChunkSize:      cfg.Chunker.ChunkSize,
		MaxOutstanding: cfg.Chunker.MaxOutstanding,
	}, m, logger)

	router := handler.NewRouter(handler.RouterConfig{
		Files:          files,
		Chunks:         chunks,
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsPath:    cfg.Metrics.Path,
		Registry:       registry,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      router.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// newLogger builds the root logger from configuration.
func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out = os.Stdout
	if cfg.Output == "stderr" {
		out = os.Stderr
	}

	zerolog.TimeFieldFormat = cfg.TimeFormat
	if cfg.Format == "console" {
		return zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).
			Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
