/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the attendance and leave ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, then flags)
  2. Initialize SQLite store
  3. Wire ledger, reconciler and accrual scheduler
  4. Start the accrual trigger
  5. Start HTTP server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides LEDGER_HTTP_ADDR)
  -db      SQLite database path (overrides LEDGER_DB_PATH)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the accrual trigger (an in-flight run is cancelled and recorded)
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  ./server -db="./data/attendance.db"
  LEDGER_TIMEZONE=Asia/Kolkata LEDGER_ACCRUAL_INTERVAL=0 ./server -port=3000

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/attendance-ledger/api"
	"github.com/warp/attendance-ledger/attendance"
	"github.com/warp/attendance-ledger/config"
	"github.com/warp/attendance-ledger/ledger"
	"github.com/warp/attendance-ledger/leave"
	"github.com/warp/attendance-ledger/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	port := flag.Int("port", 0, "HTTP server port (overrides LEDGER_HTTP_ADDR)")
	dbPath := flag.String("db", "", "SQLite database path (overrides LEDGER_DB_PATH)")
	flag.Parse()
	if *port != 0 {
		cfg.HTTPAddr = fmt.Sprintf(":%d", *port)
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	l := ledger.NewLedger(store)
	reconciler := attendance.NewReconciler(store, store, store, store, cfg.Location, logger)
	scheduler := leave.NewAccrualScheduler(store, store, l, cfg.AccrualWorkers, cfg.Location, logger)
	trigger := api.NewAccrualTrigger(scheduler, store, cfg.AccrualInterval, logger)

	handler := api.NewHandler(store, l, reconciler, trigger, cfg.Location, logger)
	router := api.NewRouter(handler, cfg.CORSOrigins)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	trigger.Start()
	defer trigger.Stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			"addr", cfg.HTTPAddr,
			"db", cfg.DBPath,
			"env", cfg.Env,
			"timezone", cfg.Location.String())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-quit:
		logger.Info("shutting down server", "signal", sig.String())
	}

	trigger.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
