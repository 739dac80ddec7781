package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/angelmondragon/learnpay-backend/internal/cron"
	"github.com/angelmondragon/learnpay-backend/internal/subscriptions"
	"github.com/angelmondragon/learnpay-backend/internal/users"
	"github.com/angelmondragon/learnpay-backend/pkg/config"
	"github.com/angelmondragon/learnpay-backend/pkg/db"
	"github.com/angelmondragon/learnpay-backend/pkg/logger"
	"github.com/angelmondragon/learnpay-backend/pkg/metrics"
	"github.com/angelmondragon/learnpay-backend/pkg/migrate"
	"github.com/angelmondragon/learnpay-backend/pkg/redis"
)

const lockNameFormat = "cron-worker:%s"

func main() {
	once := flag.Bool("once", false, "run every job a single time and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName(cfg.App.Env)), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	usersRepo := users.NewRepository(dbClient.DB())
	subscriptionStore, err := subscriptions.NewStore(subscriptions.StoreParams{
		TransactionRunner: dbClient,
		Repo:              subscriptions.NewRepository(dbClient.DB()),
		Users: func(tx *gorm.DB) subscriptions.UserPointers {
			return usersRepo.WithTx(tx)
		},
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create subscription store", err)
		os.Exit(1)
	}

	sweepJob, err := cron.NewSubscriptionSweepJob(cron.SubscriptionSweepJobParams{
		Logger: logg,
		Store:  subscriptionStore,
		Grace:  cfg.Cron.SweepGrace,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create subscription sweep job", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(sweepJob)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if *once {
		if err := service.RunOnce(ctx); err != nil {
			logg.Error(ctx, "cron cycle failed", err)
			os.Exit(1)
		}
		return
	}

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockNameFormat, env)
}
