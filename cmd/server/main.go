package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"flexsearch-service/internal/infrastructure/config"
	"flexsearch-service/internal/infrastructure/container"
	"flexsearch-service/internal/interface/httpapi"
	"flexsearch-service/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.NewLogger().Fatal("Failed to load config", "error", err)
	}

	// Create logger
	log := logger.NewLoggerWithLevel(cfg.LogLevel)
	defer log.Sync()
	log.Info("Starting Flexible Search Service", "version", cfg.AppVersion)

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := container.New(ctx, cfg, log, prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatal("Failed to initialise service", "error", err)
	}

	// Start archive retention
	if app.Retention != nil {
		if err := app.Retention.Start(ctx); err != nil {
			log.Fatal("Failed to start retention scheduler", "error", err)
		}
	}

	// Start gRPC health server in a goroutine
	go func() {
		if err := app.Health.Serve(ctx, ":"+cfg.GRPCPort); err != nil {
			log.Error("gRPC health server error", "error", err)
		}
	}()

	// Set up HTTP server
	mux := http.NewServeMux()
	httpapi.NewHandler(app.Runner, cfg.BaseURL, log).RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Healthy"))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start HTTP server in a goroutine
	go func() {
		log.Info("Starting HTTP server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server error", "error", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info("Received signal", "signal", sig)

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	// running searches finish first so their event streams can end cleanly
	if err := app.Runner.Shutdown(shutdownCtx); err != nil {
		log.Error("Searches still running at shutdown were cancelled", "error", err)
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", "error", err)
		server.Close()
	}

	if app.Retention != nil {
		app.Retention.Stop()
	}

	cancel() // Cancel the context to stop all goroutines

	if err := app.Close(context.Background()); err != nil {
		log.Error("Backend disconnect error", "error", err)
	}

	log.Info("Flexible Search Service stopped")
}
