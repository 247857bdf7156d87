package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	environment "gymbill/internal/env"
)

func main() {
	ctx := context.Background()

	env, err := environment.Setup(ctx)
	if err != nil {
		log.Fatalf("Failed to setup environment: %v", err)
	}

	logger := env.Logger
	logger.Info("Starting gymbill billing service")

	// Start observability server in background
	if env.Servers.HTTP.Observability != nil {
		go func() {
			logger.Info("Starting observability server", slog.String("addr", env.Servers.HTTP.Observability.Addr))
			if err := env.Servers.HTTP.Observability.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Observability server error", slog.Any("error", err))
			}
		}()
	}

	// Start API server in background
	go func() {
		logger.Info("Starting API server", slog.String("addr", env.Servers.HTTP.API.Addr))
		if err := env.Servers.HTTP.API.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("API server error", slog.Any("error", err))
		}
	}()

	// Start background workers
	if err := env.Services.WorkerService.Start(); err != nil {
		logger.Error("Failed to start worker service", slog.Any("error", err))
		return
	}

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Service started successfully. Press Ctrl+C to stop.")
	<-quit

	logger.Info("Shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), env.Config.ShutdownDuration)
	defer cancel()

	// Stop workers before the API goes away so in-flight sweeps can finish
	if env.Services.WorkerService != nil {
		env.Services.WorkerService.Stop()
	}

	if err := env.Servers.HTTP.API.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
		logger.Error("API server shutdown error", slog.Any("error", err))
	}

	if env.Servers.HTTP.Observability != nil {
		if err := env.Servers.HTTP.Observability.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			logger.Error("Observability server shutdown error", slog.Any("error", err))
		}
	}

	for _, closer := range env.Closers {
		closer()
	}

	logger.Info("Application stopped")
}
