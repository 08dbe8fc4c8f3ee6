/*
main.go - Application entry point

PURPOSE:
  Starts the invoicing and daily closing server. Loads configuration,
  wires the store, clock and stock locker into the API, and shuts down
  gracefully.

STARTUP SEQUENCE:
  1. Load configuration (flags, file, .env, FACINV_* environment)
  2. Build the logrus logger
  3. Open the SQLite store (migrations run on open)
  4. Choose the stock locker: Redis when redis.addr is set, in-process otherwise
  5. Build the handler and router
  6. Serve with graceful shutdown

COMMAND-LINE FLAGS:
  -config  optional YAML config file
  -db      overrides database.path (":memory:" for an in-memory database)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close the Redis client and the database

EXAMPLES:
  ./server -config=./config.yaml
  FACINV_HTTP_ADDR=:3000 FACINV_APP_TIMEZONE=America/Bogota ./server
  ./server -db=":memory:"

SEE ALSO:
  - config/config.go:        keys and defaults
  - api/server.go:           router configuration
  - store/sqlite/sqlite.go:  database implementation
*/
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/facinv/closing-engine/api"
	"github.com/facinv/closing-engine/config"
	"github.com/facinv/closing-engine/inventory"
	"github.com/facinv/closing-engine/lock"
	"github.com/facinv/closing-engine/store/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "", "YAML config file")
	dbPath := flag.String("db", "", "SQLite database path (overrides database.path)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	logger, err := config.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		logrus.WithError(err).Fatal("failed to build logger")
	}
	loc, err := cfg.Location()
	if err != nil {
		logger.WithError(err).Fatal("invalid business time zone")
	}

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize database")
	}
	defer store.Close()

	var locker inventory.Locker = lock.NewLocal()
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		if err := client.Ping(context.Background()).Err(); err != nil {
			logger.WithError(err).WithField("addr", cfg.Redis.Addr).Fatal("redis unreachable")
		}
		locker = lock.NewRedis(client, cfg.Redis.LockTTL, logger)
		logger.WithField("addr", cfg.Redis.Addr).Info("using redis stock locks")
	}

	opts := api.Options{
		BaseDomain:     cfg.Tenant.BaseDomain,
		TenantHeader:   cfg.Tenant.Header,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Pinger:         store,
	}
	if cfg.Metrics.Enabled {
		opts.Metrics = api.NewMetrics()
	}
	handler := api.NewHandler(store, inventory.SystemClock{Location: loc}, locker, logger, opts)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      api.NewRouter(handler),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"addr":     cfg.HTTP.Addr,
			"env":      cfg.App.Env,
			"timezone": loc.String(),
			"database": cfg.Database.Path,
		}).Info("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("server forced to shutdown")
		return
	}

	logger.Info("server stopped")
}
