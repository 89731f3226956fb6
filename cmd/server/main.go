package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/archoncouncil/api/internal/config"
	"github.com/archoncouncil/api/internal/infra/http"
	"github.com/archoncouncil/api/internal/infra/http/routes"
	"github.com/archoncouncil/api/internal/infra/postgres"
	"github.com/archoncouncil/api/internal/infra/redis"
	"github.com/archoncouncil/api/internal/infra/telemetry"
	"github.com/archoncouncil/api/pkg/logger"
)

// Command line flags.
var (
	showRoutes  = flag.Bool("routes", false, "Print all registered routes and exit")
	routeFormat = flag.String("route-format", "table", "Route output format: table, json, simple")
)

func main() {
	flag.Parse()
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ==========================================================================
	// Configuration & Logger
	// ==========================================================================
	cfg, err := config.Load()
	if err != nil {
		log := logger.NewDefault()
		log.Error("failed to load configuration", "error", err)
		return 1
	}

	log := initLogger(cfg)
	log.Info("starting application", "app", cfg.App.Name, "env", cfg.App.Env, "version", cfg.App.Version)

	shutdownTracing, err := telemetry.Init(ctx, cfg.Tracing, cfg.App, log)
	if err != nil {
		log.Error("failed to initialize tracing", "error", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Warn("failed to flush traces", "error", err)
		}
	}()

	// ==========================================================================
	// Infrastructure
	// ==========================================================================
	var db *postgres.DB
	if cfg.Database.IsConfigured() {
		db, err = postgres.New(ctx, &cfg.Database)
		if err != nil {
			log.Error("failed to connect to database", "error", err)
			return 1
		}
		defer closeWithLog(db, "database", log)
		log.Info("database connected")
	} else {
		log.Info("database not configured, council sessions will not be persisted")
	}

	var redisClient *redis.Client
	if cfg.RateLimit.Store == config.StoreRedis {
		redisClient, err = redis.New(ctx, &cfg.Redis, log)
		if err != nil {
			log.Error("failed to connect to redis", "error", err)
			return 1
		}
		defer closeWithLog(redisClient, "redis", log)
		log.Info("redis connected")
	}

	// ==========================================================================
	// Repositories & Services
	// ==========================================================================
	repos := NewRepositories(db)

	services, err := NewServices(&ServiceDeps{
		Config: cfg,
		Log:    log,
		Repos:  repos,
		Redis:  redisClient,
	})
	if err != nil {
		log.Error("failed to initialize services", "error", err)
		return 1
	}
	log.Info("services initialized",
		"rate_limit_store", cfg.RateLimit.Store,
		"ip_allowlist", cfg.Security.IPAllowlistEnabled,
		"model_configured", cfg.LLM.IsConfigured(),
		"voice_configured", cfg.Voice.IsConfigured(),
	)

	// ==========================================================================
	// HTTP Server
	// ==========================================================================
	handlers := NewHandlers(&HandlerDeps{
		Config:   cfg,
		Log:      log,
		DB:       db,
		Redis:    redisClient,
		Services: services,
	})

	server := http.NewServer(cfg, log)
	routes.Register(server.Router(), handlers)

	if *showRoutes {
		if err := http.PrintRoutes(os.Stdout, http.CollectRoutes(server.Router()), *routeFormat); err != nil {
			log.Error("failed to print routes", "error", err)
			return 1
		}
		return 0
	}

	// ==========================================================================
	// Workers
	// ==========================================================================
	workers, err := NewWorkers(&WorkerDeps{
		Config:   cfg,
		Log:      log,
		Services: services,
	})
	if err != nil {
		log.Error("failed to initialize workers", "error", err)
		return 1
	}
	workers.Start()
	defer workers.Stop()

	// ==========================================================================
	// Run until signalled
	// ==========================================================================
	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	log.Info("application started", "http_addr", cfg.Server.Addr())

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server error", "error", err)
		return 1
	}

	log.Info("application stopped")
	return 0
}

// =============================================================================
// Helper Functions
// =============================================================================

func initLogger(cfg *config.Config) *logger.Logger {
	log := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	log.SetDefault()
	return log
}

type closer interface {
	Close() error
}

func closeWithLog(c closer, name string, log *logger.Logger) {
	if err := c.Close(); err != nil {
		log.Error("failed to close "+name, "error", err)
	}
}
