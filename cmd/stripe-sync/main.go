package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	stripeapi "github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/angelmondragon/learnpay-backend/internal/subscriptions"
	"github.com/angelmondragon/learnpay-backend/internal/users"
	stripewebhook "github.com/angelmondragon/learnpay-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/learnpay-backend/pkg/config"
	"github.com/angelmondragon/learnpay-backend/pkg/db"
	pkgerrors "github.com/angelmondragon/learnpay-backend/pkg/errors"
	"github.com/angelmondragon/learnpay-backend/pkg/logger"
	"github.com/angelmondragon/learnpay-backend/pkg/redis"
	"github.com/angelmondragon/learnpay-backend/pkg/stripe"
)

const eventScope = "stripe_events"

// exitTempFail (EX_TEMPFAIL) tells a wrapping scheduler the event can be retried.
const exitTempFail = 75

func main() {
	logg := logger.New(logger.Options{ServiceName: "stripe-sync"})

	_ = godotenv.Load()

	eventID := flag.String("event", "", "stripe event id to fetch and apply (evt_...)")
	file := flag.String("file", "", "path to a stripe event JSON document to apply")
	flag.Parse()

	if (*eventID == "") == (*file == "") {
		fmt.Fprintln(os.Stderr, "exactly one of -event or -file is required")
		os.Exit(2)
	}

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "stripe-sync",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithField(context.Background(), "env", cfg.App.Env)

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer redisClient.Close()

	stripeClient, err := stripe.NewClient(ctx, cfg.Stripe, logg)
	requireResource(ctx, logg, "stripe", err)

	usersRepo := users.NewRepository(dbClient.DB())
	store, err := subscriptions.NewStore(subscriptions.StoreParams{
		TransactionRunner: dbClient,
		Repo:              subscriptions.NewRepository(dbClient.DB()),
		Users: func(tx *gorm.DB) subscriptions.UserPointers {
			return usersRepo.WithTx(tx)
		},
		Logger: logg,
	})
	requireResource(ctx, logg, "subscription store", err)

	processed, err := stripewebhook.NewProcessedEvents(redisClient, stripewebhook.DefaultEventRetention, eventScope)
	requireResource(ctx, logg, "processed events", err)

	service, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Store:         store,
		Subscriptions: stripeClient,
		Events:        processed,
		Logger:        logg,
	})
	requireResource(ctx, logg, "stripe sync service", err)

	var event *stripeapi.Event
	if *eventID != "" {
		event, err = stripeClient.GetEvent(ctx, *eventID)
	} else {
		event, err = readEventFile(*file)
	}
	requireResource(ctx, logg, "stripe event", err)

	if err := service.HandleEvent(ctx, event); err != nil {
		retryable := pkgerrors.IsRetryable(err)
		logg.Error(logg.WithField(ctx, "retryable", retryable), "failed to apply stripe event", err)
		if retryable {
			os.Exit(exitTempFail)
		}
		os.Exit(1)
	}
	logg.Info(logg.WithField(ctx, "stripe_event_id", event.ID), "stripe event applied")
}

func readEventFile(path string) (*stripeapi.Event, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read event file: %w", err)
	}
	var event stripeapi.Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, fmt.Errorf("decode event file: %w", err)
	}
	return &event, nil
}

func requireResource(ctx context.Context, logg *logger.Logger, name string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("failed to initialize %s", name), err)
	os.Exit(1)
}
