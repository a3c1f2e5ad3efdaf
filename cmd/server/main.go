/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the offline-first finance sync server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env and parse command-line flags
  2. Open the SQLite store (entities + queue + sync state)
  3. Build the remote client, gateways and connectivity probe
  4. Assemble the sync engine and the entity services
  5. Start the HTTP server and the auto-sync scheduler

COMMAND-LINE FLAGS:
  -addr           HTTP listen address (overrides BUZO_HTTP_ADDR)
  -db             SQLite database path (overrides BUZO_DB_PATH)
                  Use ":memory:" for an in-memory database
  -env            Path to a .env file (default: .env if present)
  -sync-interval  Auto-sync interval (overrides BUZO_SYNC_INTERVAL)

ENVIRONMENT:
  BUZO_API_URL        Backend base URL (required)
  BUZO_API_KEY        Backend API key
  BUZO_USER_ID        Authenticated user id (required)
  BUZO_HTTP_ADDR      Listen address (default :8080)
  BUZO_CORS_ORIGINS   Comma-separated allowed origins
  BUZO_SYNC_INTERVAL  Auto-sync interval (default 30s)
  BUZO_MAX_ATTEMPTS   Attempts before an item is parked (default 5)
  BUZO_DB_PATH        SQLite path (default buzo.db)
  BUZO_WEBHOOK_URL    Optional notification webhook

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the auto-sync scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close the database

SEE ALSO:
  - api/server.go: Router configuration
  - config/env.go: Environment parsing
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/soffoalbert/buzo-sync/api"
	"github.com/soffoalbert/buzo-sync/config"
	"github.com/soffoalbert/buzo-sync/finance"
	"github.com/soffoalbert/buzo-sync/notify"
	"github.com/soffoalbert/buzo-sync/remote"
	"github.com/soffoalbert/buzo-sync/store/sqlite"
	"github.com/soffoalbert/buzo-sync/syncer"
)

func main() {
	// Flags
	addr := flag.String("addr", "", "HTTP listen address (overrides BUZO_HTTP_ADDR)")
	dbPath := flag.String("db", "", "SQLite database path (overrides BUZO_DB_PATH)")
	envPath := flag.String("env", "", "Path to a .env file")
	syncInterval := flag.Duration("sync-interval", 0, "Auto-sync interval (overrides BUZO_SYNC_INTERVAL)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := config.Load(*envPath); err != nil {
		log.Fatalf("Failed to load env file: %v", err)
	}

	remoteCfg, err := config.NewRemoteConfig()
	if err != nil {
		log.Fatalf("Remote config: %v", err)
	}
	serverCfg, err := config.NewServerConfig()
	if err != nil {
		log.Fatalf("Server config: %v", err)
	}
	syncCfg, err := config.NewSyncConfig()
	if err != nil {
		log.Fatalf("Sync config: %v", err)
	}

	if *addr == "" {
		*addr = serverCfg.Addr()
	}
	if *dbPath == "" {
		*dbPath = syncCfg.DBPath()
	}
	if *syncInterval == 0 {
		*syncInterval = syncCfg.Interval()
	}

	// Storage: one SQLite file holds entities, queue, and sync state.
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Remote side
	client := remote.NewClient(remoteCfg.APIURL(), remoteCfg.APIKey(), remote.WithLogger(logger))
	conn := api.NewConnectivitySwitch(remote.NewProbe(remoteCfg.APIURL(), remoteCfg.APIKey()))

	// Sync engine
	tracker, err := syncer.NewTracker(context.Background(), store)
	if err != nil {
		log.Fatalf("Failed to load sync state: %v", err)
	}
	queue := syncer.NewQueue(store, tracker,
		syncer.WithMaxAttempts(syncCfg.MaxAttempts()),
		syncer.WithQueueLogger(logger))
	processor := syncer.NewProcessor(queue, tracker, remote.SyncGateways(client), logger)

	// Notifications: webhook when configured, otherwise dropped.
	var alerts finance.AlertDispatcher = notify.Noop{}
	var insights finance.InsightGenerator = notify.Noop{}
	if url := os.Getenv("BUZO_WEBHOOK_URL"); url != "" {
		hook := notify.NewWebhook(url, notify.WithWebhookLogger(logger))
		alerts, insights = hook, hook
	}

	// Entity services
	services := finance.NewServices(finance.Deps{
		Store:    store,
		Queue:    queue,
		Online:   conn,
		Identity: syncer.StaticIdentity(remoteCfg.UserID()),
		Expenses: remote.NewExpenseGateway(client),
		Budgets:  remote.NewBudgetGateway(client),
		Savings:  remote.NewSavingsGateway(client),
		Alerts:   alerts,
		Insights: insights,
		Logger:   logger,
	})

	// HTTP surface
	handler := api.NewHandler(services, queue, processor, store, conn)
	router := api.NewRouter(handler, serverCfg.CORSOrigins())

	server := &http.Server{
		Addr:         *addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Auto-sync
	scheduler := api.NewSyncScheduler(processor, conn)
	scheduler.Interval = *syncInterval
	scheduler.Start()

	go func() {
		logger.Info("server starting", "addr", *addr, "db", *dbPath, "sync_interval", *syncInterval)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("server stopped")
}
