// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package main runs the tpx TCP forwarder.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/YushiOMOTE/tpx"
	perrors "github.com/YushiOMOTE/tpx/pkg/errors"
	"github.com/YushiOMOTE/tpx/pkg/handler"
	"github.com/YushiOMOTE/tpx/pkg/health"
	"github.com/YushiOMOTE/tpx/pkg/metrics"
	"github.com/YushiOMOTE/tpx/pkg/server/tcp"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

func main() {
	// .env file is optional
	_ = godotenv.Load()

	cfg, err := tpx.Load("tpx", os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting tpx", slog.Any("config", cfg))

	if err := run(cfg, logger); err != nil {
		logger.Error("shutdown with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("shutdown")
}

func run(cfg tpx.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	m := metrics.New("tpx")
	h := &InstrumentedHandler{
		handler: &handler.NoopHandler{},
		metrics: m,
		logger:  logger,
	}

	server := tcp.New(tcp.Config{
		Address:         cfg.Source,
		TargetAddress:   cfg.Destination,
		SocketOptions:   cfg.SocketOptions(),
		MaxSessions:     cfg.MaxSessions,
		DialTimeout:     cfg.DialTimeout,
		BufferSize:      cfg.BufferSize,
		ShutdownTimeout: cfg.ShutdownTimeout,
		Logger:          logger,
	}, h)

	g.Go(func() error {
		if err := server.Listen(ctx); err != nil {
			logger.Error("TCP forwarder failed", slog.String("error", err.Error()))
			return err
		}
		return nil
	})

	if cfg.MetricsAddr != "" {
		checker := health.NewChecker(time.Second)
		registerChecks(checker, server)

		g.Go(func() error {
			return serveObservability(ctx, cfg.MetricsAddr, m, checker, logger)
		})
	}

	g.Go(func() error {
		return StopSignalHandler(ctx, cancel, logger)
	})

	return g.Wait()
}

func registerChecks(checker *health.Checker, server *tcp.Server) {
	checker.Register("listener", func(ctx context.Context) error {
		select {
		case <-server.Ready():
			return nil
		default:
			return errors.New("not listening")
		}
	})

	checker.Register("sessions", func(ctx context.Context) error {
		limit := server.MaxSessions()
		if active := server.Active(); limit > 0 && active >= int64(limit) {
			return fmt.Errorf("session limit reached: %d of %d", active, limit)
		}
		return nil
	})
}

// serveObservability serves metrics and health endpoints until ctx is done.
func serveObservability(ctx context.Context, addr string, m *metrics.Metrics, checker *health.Checker, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/health", checker.HTTPHandler())
	mux.HandleFunc("/ready", checker.HTTPHandler())
	mux.HandleFunc("/live", health.LivenessHandler())

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("observability server shutdown error", slog.String("error", err.Error()))
		}
	})
	defer stop()

	logger.Info("observability server started", slog.String("address", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return perrors.Wrap(err, "observability server")
	}
	return nil
}

// StopSignalHandler cancels ctx on SIGINT or SIGTERM.
func StopSignalHandler(ctx context.Context, cancel context.CancelFunc, logger *slog.Logger) error {
	c := make(chan os.Signal, 2)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(c)

	select {
	case sig := <-c:
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
		return nil
	case <-ctx.Done():
		return nil
	}
}

// setupLogger creates a structured logger with the specified level and format.
func setupLogger(level, format string) *slog.Logger {
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

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(h)
}
