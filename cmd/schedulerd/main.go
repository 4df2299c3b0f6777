/*
main.go - Scheduler daemon entry point

PURPOSE:
  Initializes and starts the recurring-transaction scheduler: SQLite store,
  batch driver, automatic scheduler, and the HTTP trigger/inspection API.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Load configuration (defaults -> file -> RECUR_* environment)
  3. Open SQLite store
  4. Assemble driver, handler, router, scheduler
  5. Start HTTP server; stop everything gracefully on SIGINT/SIGTERM

COMMAND-LINE FLAGS:
  -config  Path to a config file (optional; defaults searched in ./configs)
  -port    Overrides server.port
  -db      Overrides database.path; use ":memory:" for an in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM the scheduler stops first (waiting for an in-flight
  batch, so no materialization is interrupted mid-occurrence), then the
  HTTP server drains, then the database closes.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/warp/recurrence-engine/api"
	"github.com/warp/recurrence-engine/config"
	"github.com/warp/recurrence-engine/schedule"
	"github.com/warp/recurrence-engine/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	driver := schedule.NewDriver(store, store, store)
	driver.Runs = store
	driver.PoolSize = cfg.WorkerPool.Size

	handler := api.NewHandler(driver, store)
	router := api.NewRouter(handler)

	scheduler := api.NewBatchScheduler(driver)
	scheduler.Interval = cfg.Scheduler.Interval
	scheduler.Enabled = cfg.Scheduler.Enabled
	scheduler.Start()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Printf("[Server] Listening on http://localhost:%d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[Server] Shutting down...")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("[Server] Stopped")
}
