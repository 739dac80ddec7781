package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/learnpay-backend/internal/identity"
	"github.com/angelmondragon/learnpay-backend/internal/repo"
	"github.com/angelmondragon/learnpay-backend/pkg/db"
	"github.com/angelmondragon/learnpay-backend/pkg/db/models"
	"github.com/angelmondragon/learnpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/learnpay-backend/pkg/errors"
	"github.com/angelmondragon/learnpay-backend/pkg/logger"
)

var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrIntegrityViolation   = errors.New("multiple subscriptions share a stripe subscription id")
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// UserPointers is the slice of the users repository the store writes through.
type UserPointers interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	SetCurrentSubscription(ctx context.Context, userID, subscriptionID uuid.UUID) (int64, error)
	ClearCurrentSubscription(ctx context.Context, subscriptionID uuid.UUID) (int64, error)
}

// UpsertInput carries the mirrored provider state. Nil period fields and a nil
// UserID are left untouched on existing rows; creating a row needs a UserID.
type UpsertInput struct {
	UserID               uuid.UUID
	StripeSubscriptionID string
	Status               enums.SubscriptionStatus
	PlanType             enums.PlanType
	CurrentPeriodStart   *time.Time
	CurrentPeriodEnd     *time.Time
	CancelAtPeriodEnd    bool
}

func (in UpsertInput) validate() error {
	if strings.TrimSpace(in.StripeSubscriptionID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe subscription id is required")
	}
	if !in.Status.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid subscription status %q", in.Status))
	}
	if !in.PlanType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid plan type %q", in.PlanType))
	}
	return nil
}

// patchFields lists the columns an update may overwrite.
func (in UpsertInput) patchFields() map[string]any {
	fields := map[string]any{
		"status":               in.Status.String(),
		"plan_type":            in.PlanType.String(),
		"cancel_at_period_end": in.CancelAtPeriodEnd,
	}
	if in.UserID != uuid.Nil {
		fields["user_id"] = in.UserID
	}
	if in.CurrentPeriodStart != nil {
		fields["current_period_start"] = in.CurrentPeriodStart.UTC()
	}
	if in.CurrentPeriodEnd != nil {
		fields["current_period_end"] = in.CurrentPeriodEnd.UTC()
	}
	return fields
}

func (in UpsertInput) toModel() *models.Subscription {
	sub := &models.Subscription{
		UserID:               in.UserID,
		StripeSubscriptionID: in.StripeSubscriptionID,
		Status:               in.Status,
		PlanType:             in.PlanType,
		CancelAtPeriodEnd:    in.CancelAtPeriodEnd,
	}
	if in.CurrentPeriodStart != nil {
		start := in.CurrentPeriodStart.UTC()
		sub.CurrentPeriodStart = &start
	}
	if in.CurrentPeriodEnd != nil {
		end := in.CurrentPeriodEnd.UTC()
		sub.CurrentPeriodEnd = &end
	}
	return sub
}

// StoreParams groups dependencies for the subscription store.
type StoreParams struct {
	TransactionRunner txRunner
	Repo              Repository
	Users             func(tx *gorm.DB) UserPointers
	Logger            *logger.Logger
}

// Store keeps subscription rows and user pointers consistent.
type Store struct {
	tx    txRunner
	repo  Repository
	users func(tx *gorm.DB) UserPointers
	logg  *logger.Logger
}

// NewStore builds a Store with the required dependencies.
func NewStore(params StoreParams) (*Store, error) {
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("subscription repository required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Store{
		tx:    params.TransactionRunner,
		repo:  params.Repo,
		users: params.Users,
		logg:  params.Logger,
	}, nil
}

// Get returns the user's current subscription, or nil when the pointer is
// unset or dangling.
func (s *Store) Get(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	user, err := s.users(nil).FindByID(ctx, userID)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	if user.CurrentSubscriptionID == nil {
		return nil, nil
	}
	sub, err := s.repo.FindByID(ctx, *user.CurrentSubscriptionID)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	return sub, nil
}

// Upsert mirrors provider state by external id. Existing rows are patched in
// place; new rows are inserted and become the owner's current subscription.
func (s *Store) Upsert(ctx context.Context, in UpsertInput) error {
	if err := in.validate(); err != nil {
		return err
	}
	ctx = s.logg.WithField(ctx, "stripe_subscription_id", in.StripeSubscriptionID)
	if in.UserID != uuid.Nil {
		ctx = s.logg.WithField(ctx, "user_id", in.UserID.String())
	}

	created, err := s.upsertOnce(ctx, in)
	if err != nil && db.IsUniqueViolation(err, "") {
		// A concurrent insert won; the second pass takes the patch branch.
		created, err = s.upsertOnce(ctx, in)
	}
	if err != nil {
		return err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"event":   "subscription.upserted",
		"created": created,
		"status":  in.Status.String(),
	}), "subscription upserted")
	return nil
}

func (s *Store) upsertOnce(ctx context.Context, in UpsertInput) (bool, error) {
	created := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		subs := s.repo.WithTx(tx)
		existing, err := s.findUnique(ctx, subs, in.StripeSubscriptionID)
		if err != nil {
			return err
		}
		if existing != nil {
			if err := subs.Patch(ctx, existing.ID, in.patchFields()); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "patch subscription")
			}
			return nil
		}
		if in.UserID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "user id is required to create a subscription")
		}

		users := s.users(tx)
		if _, err := users.FindByID(ctx, in.UserID); err != nil {
			if repo.IsNotFound(err) {
				return pkgerrors.Wrap(pkgerrors.CodeNotFound, identity.ErrUserNotFound, "owning user not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load owning user")
		}

		sub := in.toModel()
		if err := subs.Create(ctx, sub); err != nil {
			if db.IsUniqueViolation(err, "") {
				return err
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert subscription")
		}
		rows, err := users.SetCurrentSubscription(ctx, in.UserID, sub.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "set current subscription")
		}
		if rows == 0 {
			return pkgerrors.Wrap(pkgerrors.CodeNotFound, identity.ErrUserNotFound, "owning user not found")
		}
		created = true
		return nil
	})
	return created, err
}

// Remove deletes the subscription with the given external id after clearing
// any user pointer that references it.
func (s *Store) Remove(ctx context.Context, stripeSubscriptionID string) error {
	if strings.TrimSpace(stripeSubscriptionID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe subscription id is required")
	}
	ctx = s.logg.WithField(ctx, "stripe_subscription_id", stripeSubscriptionID)

	var cleared int64
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		subs := s.repo.WithTx(tx)
		existing, err := s.findUnique(ctx, subs, stripeSubscriptionID)
		if err != nil {
			return err
		}
		if existing == nil {
			return pkgerrors.Wrap(pkgerrors.CodeNotFound, ErrSubscriptionNotFound, "subscription not found")
		}

		cleared, err = s.users(tx).ClearCurrentSubscription(ctx, existing.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear current subscription")
		}
		if err := subs.Delete(ctx, existing.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete subscription")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"event":         "subscription.removed",
		"users_cleared": cleared,
	}), "subscription removed")
	return nil
}

// SweepUnreferenced deletes subscriptions no user points at that have been idle
// since before the cutoff. Only terminal statuses are considered when none are given.
func (s *Store) SweepUnreferenced(ctx context.Context, cutoff time.Time, batchSize int, statuses ...enums.SubscriptionStatus) (int64, error) {
	if len(statuses) == 0 {
		statuses = enums.TerminalSubscriptionStatuses
	}
	for _, status := range statuses {
		if !status.IsTerminal() {
			return 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("status %s is not terminal", status))
		}
	}
	deleted, err := s.repo.DeleteUnreferenced(ctx, statuses, cutoff, batchSize)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sweep subscriptions")
	}
	return deleted, nil
}

func (s *Store) findUnique(ctx context.Context, subs Repository, stripeSubscriptionID string) (*models.Subscription, error) {
	matches, err := subs.FindByStripeID(ctx, stripeSubscriptionID, 2)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup subscription")
	}
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return &matches[0], nil
	default:
		s.logg.Error(ctx, "duplicate stripe subscription rows", ErrIntegrityViolation)
		return nil, pkgerrors.Wrap(pkgerrors.CodeIntegrity, ErrIntegrityViolation, "multiple subscriptions share a stripe subscription id")
	}
}
