package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/angelmondragon/learnpay-backend/api/routes"
	"github.com/angelmondragon/learnpay-backend/internal/checkout"
	"github.com/angelmondragon/learnpay-backend/internal/courses"
	"github.com/angelmondragon/learnpay-backend/internal/identity"
	"github.com/angelmondragon/learnpay-backend/internal/subscriptions"
	"github.com/angelmondragon/learnpay-backend/internal/users"
	"github.com/angelmondragon/learnpay-backend/pkg/auth"
	"github.com/angelmondragon/learnpay-backend/pkg/config"
	"github.com/angelmondragon/learnpay-backend/pkg/db"
	"github.com/angelmondragon/learnpay-backend/pkg/logger"
	"github.com/angelmondragon/learnpay-backend/pkg/metrics"
	"github.com/angelmondragon/learnpay-backend/pkg/migrate"
	"github.com/angelmondragon/learnpay-backend/pkg/redis"
	"github.com/angelmondragon/learnpay-backend/pkg/stripe"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	verifier, err := auth.NewClerkVerifier(context.Background(), cfg.Clerk.Issuer, cfg.Clerk.JWKSURL())
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap identity verifier", err)
		os.Exit(1)
	}

	usersRepo := users.NewRepository(dbClient.DB())
	gate, err := identity.NewGate(usersRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create identity gate", err)
		os.Exit(1)
	}

	limiter, err := checkout.NewRedisRateLimiter(redisClient, cfg.CheckoutRateLimit.Limit, cfg.CheckoutRateLimit.Window)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout rate limiter", err)
		os.Exit(1)
	}

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Gate:     gate,
		Courses:  courses.NewRepository(dbClient.DB()),
		Limiter:  limiter,
		Sessions: stripeClient,
		Logger:   logg,
		Metrics:  metrics.NewCheckoutMetrics(prometheus.DefaultRegisterer),
		BaseURL:  cfg.App.PublicBaseURL(),
		Currency: cfg.Stripe.Currency,
		Prices: checkout.PriceIDs{
			Monthly: cfg.Stripe.MonthlyPriceID,
			Yearly:  cfg.Stripe.YearlyPriceID,
		},
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

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

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":        cfg.App.Env,
		"addr":       addr,
		"stripe_env": stripeClient.Environment(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			verifier,
			checkoutService,
			gate,
			subscriptionStore,
			promhttp.Handler(),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
		logg.Info(ctx, "api server shut down gracefully")
	}
}
