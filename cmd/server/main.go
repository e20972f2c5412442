/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the installment reconciliation server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags (environment fills in what flags leave unset)
  2. Configure structured logging
  3. Initialize SQLite store
  4. Connect the schedule cache (Redis, or in-memory fallback)
  5. Create engine, API handler and router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port          HTTP server port (default: 8080, env PORT)
  -db            SQLite database path (default: installments.db, env DATABASE_PATH)
                 Use ":memory:" for in-memory database
  -redis         Redis address for the schedule cache (env REDIS_ADDR)
                 Empty means in-process cache
  -max-attempts  Optimistic-concurrency attempts per operation (default: 3)
  -log-level     debug, info, warn or error (default: info)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close cache and database connections
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/installments.db"

  # Run with in-memory database and Redis cache
  REDIS_ADDR=localhost:6379 ./server -db=":memory:"

SEE ALSO:
  - api/server.go: Router configuration
  - installment/engine.go: Engine
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/warp/installment-engine/api"
	"github.com/warp/installment-engine/cache"
	"github.com/warp/installment-engine/installment"
	"github.com/warp/installment-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envString("DATABASE_PATH", "installments.db"), "SQLite database path")
	redisAddr := flag.String("redis", os.Getenv("REDIS_ADDR"), "Redis address for the schedule cache")
	maxAttempts := flag.Int("max-attempts", installment.DefaultMaxAttempts, "Attempts per operation on version conflicts")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(*logLevel)}))
	slog.SetDefault(logger)

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		logger.Error("failed to initialize database", "path", *dbPath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Initialize engine
	engine := installment.NewEngine(store)
	engine.Logger = logger
	engine.MaxAttempts = *maxAttempts
	engine.Cache = newScheduleCache(*redisAddr, logger)
	if closer, ok := engine.Cache.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	// Initialize handler
	handler := api.NewHandler(engine, store)
	handler.Logger = logger

	// Create router
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: api.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting", "addr", fmt.Sprintf("http://localhost:%d", *port), "db", *dbPath)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		return
	}

	logger.Info("server stopped")
}

// newScheduleCache connects to Redis when addr is set. An unreachable Redis
// is not fatal: the server falls back to an in-process cache.
func newScheduleCache(addr string, logger *slog.Logger) installment.ScheduleCache {
	if addr == "" {
		logger.Info("REDIS_ADDR not set, using in-memory schedule cache")
		return cache.NewMemory()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rc, err := cache.NewRedis(ctx, addr, logger)
	if err != nil {
		logger.Warn("redis unavailable, using in-memory schedule cache", "addr", addr, "error", err)
		return cache.NewMemory()
	}
	logger.Info("redis schedule cache connected", "addr", addr)
	return rc
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}
