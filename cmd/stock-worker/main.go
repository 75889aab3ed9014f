package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ysjshop/backend/internal/catalog"
	"github.com/ysjshop/backend/internal/cron"
	"github.com/ysjshop/backend/internal/stock"
	"github.com/ysjshop/backend/pkg/config"
	"github.com/ysjshop/backend/pkg/db"
	"github.com/ysjshop/backend/pkg/logger"
	"github.com/ysjshop/backend/pkg/metrics"
	"github.com/ysjshop/backend/pkg/migrate"
	"github.com/ysjshop/backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "stock-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "stock-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	// Redis is optional: without it the worker lock degrades to in-process
	// and the snapshot cache stays off.
	var (
		redisClient   *redis.Client
		workerLock    cron.Lock
		snapshotCache *stock.SnapshotCache
	)
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()

		workerLock, err = cron.NewRedisLock(redisClient, redisClient.LockKey(lockScope(cfg.App.Env)), 0)
		if err != nil {
			logg.Error(context.Background(), "failed to create worker lock", err)
			os.Exit(1)
		}
		snapshotCache = stock.NewSnapshotCache(redisClient, cfg.Stock.SnapshotCacheTTL, logg)
	} else {
		logg.Warn(context.Background(), "redis not configured, using in-process worker lock")
		workerLock = cron.NewLocalLock()
	}

	stockService, err := stock.NewService(stock.ServiceParams{
		Tx:      dbClient,
		Ledger:  stock.NewLedgerRepository(dbClient.DB()),
		Audit:   stock.NewAuditRepository(dbClient.DB()),
		Catalog: catalog.NewRepository(dbClient.DB()),
		Locks:   stock.NewLockManager(cfg.Stock.LockAcquireTimeout),
		Logger:  logg,
		Metrics: metrics.NewStockMetrics(prometheus.DefaultRegisterer),
		Cache:   snapshotCache,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stock service", err)
		os.Exit(1)
	}

	expiryJob, err := cron.NewReservationExpiryJob(cron.ReservationExpiryJobParams{
		Logger:   logg,
		Finder:   stock.NewAuditRepository(dbClient.DB()),
		Releaser: stockService,
		TTL:      cfg.Stock.ReservationTTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reservation expiry job", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(expiryJob),
		Lock:     workerLock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Stock.WorkerInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create worker service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env})
	logg.Info(ctx, "starting stock worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "stock worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "stock worker shutting down gracefully")
}

func lockScope(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf("stock-worker:%s", env)
}
