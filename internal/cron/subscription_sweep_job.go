package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/learnpay-backend/pkg/enums"
	"github.com/angelmondragon/learnpay-backend/pkg/logger"
)

const (
	defaultSweepGrace      = 30 * 24 * time.Hour
	defaultSweepBatchSize  = 500
	defaultSweepMaxBatches = 20
)

type subscriptionSweeper interface {
	SweepUnreferenced(ctx context.Context, cutoff time.Time, batchSize int, statuses ...enums.SubscriptionStatus) (int64, error)
}

// SubscriptionSweepJobParams configures the unreferenced subscription sweep.
type SubscriptionSweepJobParams struct {
	Logger     *logger.Logger
	Store      subscriptionSweeper
	Grace      time.Duration
	BatchSize  int
	MaxBatches int
}

// NewSubscriptionSweepJob builds a job that deletes terminal subscription rows
// left behind once no user references them.
func NewSubscriptionSweepJob(params SubscriptionSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("subscription store required")
	}
	grace := params.Grace
	if grace <= 0 {
		grace = defaultSweepGrace
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultSweepBatchSize
	}
	maxBatches := params.MaxBatches
	if maxBatches <= 0 {
		maxBatches = defaultSweepMaxBatches
	}
	return &subscriptionSweepJob{
		logg:       params.Logger,
		store:      params.Store,
		grace:      grace,
		batchSize:  batchSize,
		maxBatches: maxBatches,
		statuses:   enums.TerminalSubscriptionStatuses,
		now:        time.Now,
	}, nil
}

type subscriptionSweepJob struct {
	logg       *logger.Logger
	store      subscriptionSweeper
	grace      time.Duration
	batchSize  int
	maxBatches int
	statuses   []enums.SubscriptionStatus
	now        func() time.Time
}

func (j *subscriptionSweepJob) Name() string { return "subscription-sweep" }

// Run sweeps each terminal status independently so one failing status does
// not block the others.
func (j *subscriptionSweepJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.grace)
	var (
		errs  error
		total int64
	)
	for _, status := range j.statuses {
		deleted, err := j.sweepStatus(ctx, status, cutoff)
		total += deleted
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("sweep %s subscriptions: %w", status, err))
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": total,
	})
	if errs != nil {
		return errs
	}
	j.logg.Info(logCtx, "subscription sweep complete")
	return nil
}

func (j *subscriptionSweepJob) sweepStatus(ctx context.Context, status enums.SubscriptionStatus, cutoff time.Time) (int64, error) {
	var total int64
	for batch := 0; batch < j.maxBatches; batch++ {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		deleted, err := j.store.SweepUnreferenced(ctx, cutoff, j.batchSize, status)
		if err != nil {
			return total, err
		}
		total += deleted
		if deleted < int64(j.batchSize) {
			return total, nil
		}
	}
	j.logg.Warn(j.logg.WithField(ctx, "status", status.String()), "subscription sweep hit batch cap")
	return total, nil
}
