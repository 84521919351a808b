/*
main.go - Application entry point

PURPOSE:
  Starts the research incentive policy server. Loads configuration, wires
  the store, domains, defaults and service, and shuts down gracefully.

STARTUP SEQUENCE:
  1. Load config (.env, INCENTIVE_* environment, flags)
  2. Build the zap logger
  3. Open the SQLite store (also the audit sink)
  4. Load the built-in default policies
  5. Configure the HTTP router and serve

COMMAND-LINE FLAGS (override environment):
  -port    HTTP server port            INCENTIVE_PORT     (default 8080)
  -db      SQLite database path        INCENTIVE_DB       (default incentives.db)
           Use ":memory:" for an in-memory database
  -env     Optional .env file          (default .env)

OTHER ENVIRONMENT:
  INCENTIVE_LOG_MODE          dev | prod
  INCENTIVE_CORS_ORIGINS      space-separated origins
  INCENTIVE_SHUTDOWN_TIMEOUT  e.g. 10s
  INCENTIVE_REQUEST_TIMEOUT   e.g. 30s

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests (ShutdownTimeout)
  3. Close database connection

SEE ALSO:
  - internal/config/config.go: Configuration keys
  - api/server.go: Router configuration
*/
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

	"github.com/campus-rims/incentive-engine/api"
	"github.com/campus-rims/incentive-engine/domains"
	"github.com/campus-rims/incentive-engine/incentive"
	"github.com/campus-rims/incentive-engine/internal/config"
	"github.com/campus-rims/incentive-engine/internal/logger"
	"github.com/campus-rims/incentive-engine/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	// Flags
	envFile := flag.String("env", ".env", "optional .env file")
	port := flag.Int("port", 0, "HTTP server port (overrides INCENTIVE_PORT)")
	dbPath := flag.String("db", "", "SQLite database path (overrides INCENTIVE_DB)")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		return err
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer store.Close()

	defaults, err := domains.LoadDefaults()
	if err != nil {
		return fmt.Errorf("load default policies: %w", err)
	}

	svc := incentive.NewService(store, domains.NewRegistry(), defaults, store, log)
	handler := api.NewHandler(svc, defaults, store, log)
	router := api.NewRouter(handler, api.RouterOptions{
		CORSOrigins:    cfg.CORSOrigins,
		RequestTimeout: cfg.RequestTimeout,
		Health:         store.Ping,
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "addr", cfg.Addr(), "db", cfg.DBPath, "log_mode", cfg.LogMode)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}
