package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mediation_desk/internal/config"
	"mediation_desk/internal/handler"
	"mediation_desk/internal/hub"
	"mediation_desk/internal/metrics"
	"mediation_desk/internal/middleware"
	"mediation_desk/internal/repository"
	"mediation_desk/internal/service"
	"mediation_desk/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := logger.NewWithOptions(logger.Options{
		Level:   cfg.Log.Level,
		Pretty:  cfg.Log.Pretty,
		Service: "mediation-desk",
	})

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	var (
		repos *repository.Repositories
		db    handler.Pinger
	)

	switch cfg.Storage.Driver {
	case config.StorageDriverMemory:
		appLogger.Warn("Using in-memory storage, state is lost on restart")
		repos = repository.NewMemoryRepositories(time.Now, appLogger)

	default:
		dbPool := connectPostgres(ctx, cfg.Database, appLogger)
		defer dbPool.Close()

		if cfg.Database.RunMigrations {
			if err := repository.RunMigrations(dbPool, appLogger); err != nil {
				appLogger.Fatal("Failed to run migrations", "error", err)
			}
		}

		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			appLogger.Fatal("Failed to connect to Redis", "error", err)
		}
		appLogger.Info("Redis connection established")

		repos = repository.NewRepositories(dbPool, rdb, appLogger)
		db = dbPool
	}

	m := metrics.New()
	services := service.NewServices(repos, cfg, m, time.Now, appLogger)
	rooms := hub.New(services, m, appLogger)

	if cfg.Janitor.Enabled {
		janitor, err := service.NewJanitor(services.Session, services.Mediation, services.Audit, rooms, cfg.Janitor.Schedule, m, time.Now, appLogger)
		if err != nil {
			appLogger.Fatal("Failed to create janitor", "error", err)
		}
		go janitor.Run(ctx)
	}

	handlers := handler.NewHandlers(services, rooms, m, db, cfg, appLogger)
	router := handler.SetupRouter(
		handlers,
		middleware.NewSessionAuth(services.Session, appLogger),
		middleware.NewRateLimitMiddleware(services.RateLimit, appLogger),
		cfg,
		appLogger,
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		appLogger.Info("Starting server", "addr", srv.Addr, "storage", cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("Failed to start server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", "error", err)
	}

	appLogger.Info("Server exited")
}

func connectPostgres(ctx context.Context, cfg config.DatabaseConfig, log logger.Logger) *pgxpool.Pool {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		log.Fatal("Invalid database DSN", "error", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConnections)
	poolCfg.MaxConnIdleTime = cfg.MaxIdleTime
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

	dbPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}

	if err := dbPool.Ping(ctx); err != nil {
		log.Fatal("Failed to ping database", "error", err)
	}
	log.Info("Database connection established")
	return dbPool
}
