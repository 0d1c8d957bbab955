// Package main wires together the bindstack service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/bindstack/bindstack/internal/api"
	"github.com/bindstack/bindstack/internal/clock/system"
	"github.com/bindstack/bindstack/internal/config"
	"github.com/bindstack/bindstack/internal/epub"
	"github.com/bindstack/bindstack/internal/id/uuid"
	"github.com/bindstack/bindstack/internal/job"
	"github.com/bindstack/bindstack/internal/logging"
	"github.com/bindstack/bindstack/internal/metrics"
	"github.com/bindstack/bindstack/internal/substack"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := job.NewRegistry(job.RegistryConfig{
		Workdir:      cfg.Jobs.Workdir,
		TTL:          cfg.Jobs.TTL(),
		ReapInterval: cfg.Jobs.ReapInterval(),
		KeepAlive:    cfg.Jobs.KeepAlive(),
	}, system.New(), uuid.NewGenerator(), logger.Named("registry"))

	clients := substack.NewFactory(cfg.Substack, logger)
	builder := epub.NewBuilder(logger.Named("epub"))
	runner := job.NewRunner(clients, builder, cfg.Jobs.ItemDelay(), logger.Named("runner"))

	apiServer := api.NewServer(ctx, registry, runner, clients, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("job reaper started")
		registry.Reap(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
