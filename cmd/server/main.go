/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the recycling ledger server.
  Handles configuration, store selection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env + environment), then apply flags
  2. Build the logger
  3. Open the configured store and load the engine state
  4. Optionally seed demo data into an empty ledger
  5. Start the backup scheduler when BACKUP_DIR is set
  6. Configure HTTP router
  7. Start server with graceful shutdown

COMMAND-LINE FLAGS (override the environment):
  -port    HTTP server port (PORT, default: 8080)
  -store   memory | sqlite | workbook (STORE_DRIVER, default: sqlite)
  -db      SQLite database path (DB_PATH, default: recycling.db)
           Use ":memory:" for an in-memory database
  -xlsx    Workbook path for -store=workbook (WORKBOOK_PATH)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the backup scheduler
  4. Close the store
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/recycling.db"

  # Keep everything in a spreadsheet
  ./server -store=workbook -xlsx="./data/recycling.xlsx"

  # Throwaway instance with demo data
  SEED_DEMO=true ./server -store=memory

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/green/recycling-ledger/api"
	"github.com/green/recycling-ledger/config"
	"github.com/green/recycling-ledger/ledger"
	"github.com/green/recycling-ledger/ledger/store"
	"github.com/green/recycling-ledger/store/sqlite"
	"github.com/green/recycling-ledger/workbook"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// Flags
	flag.IntVar(&cfg.App.Port, "port", cfg.App.Port, "HTTP server port")
	flag.StringVar(&cfg.Store.Driver, "store", cfg.Store.Driver, "Store driver: memory, sqlite or workbook")
	flag.StringVar(&cfg.Store.DBPath, "db", cfg.Store.DBPath, "SQLite database path")
	flag.StringVar(&cfg.Store.WorkbookPath, "xlsx", cfg.Store.WorkbookPath, "Workbook path")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logg, err := config.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, logg); err != nil {
		logg.WithError(err).Fatal("server failed")
	}
}

func run(cfg *config.Config, logg *logrus.Logger) error {
	ctx := context.Background()

	st, closer, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer closer.Close()

	engine, err := ledger.Open(ctx, st, ledger.WithLogger(logg.WithField("component", "ledger")))
	if err != nil {
		return err
	}

	if cfg.App.SeedDemo && len(engine.Partners()) == 0 {
		if _, err := api.SeedDemo(ctx, engine); err != nil {
			return fmt.Errorf("failed to seed demo data: %w", err)
		}
		logg.Info("demo data seeded")
	}

	handler := api.NewHandler(engine, logg.WithField("component", "api"))
	if cfg.Backup.Dir != "" {
		backups := api.NewBackupScheduler(engine, cfg.Backup.Dir, logg.WithField("component", "backup"))
		backups.CheckInterval = cfg.Backup.Interval
		backups.Keep = cfg.Backup.Keep
		backups.Start()
		defer backups.Stop()
		handler.Backups = backups
	}
	router := api.NewRouter(handler, cfg.Server.CORSOrigins...)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		logg.WithFields(logrus.Fields{
			"app":   cfg.App.Name,
			"addr":  server.Addr,
			"store": cfg.Store.Driver,
		}).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	logg.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logg.Info("server stopped")
	return nil
}

// openStore builds the configured store. The closer releases its resources.
func openStore(cfg *config.Config) (ledger.Store, io.Closer, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		return store.NewMemory(), io.NopCloser(nil), nil
	case config.DriverWorkbook:
		return workbook.NewStore(cfg.Store.WorkbookPath), io.NopCloser(nil), nil
	default:
		db, err := sqlite.New(cfg.Store.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return db, db, nil
	}
}
