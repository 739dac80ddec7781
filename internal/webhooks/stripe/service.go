package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/learnpay-backend/internal/subscriptions"
	"github.com/angelmondragon/learnpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/learnpay-backend/pkg/errors"
	"github.com/angelmondragon/learnpay-backend/pkg/logger"
)

const (
	metadataUserID = "userId"
	metadataPlanID = "planId"
)

type subscriptionStore interface {
	Upsert(ctx context.Context, in subscriptions.UpsertInput) error
	Remove(ctx context.Context, stripeSubscriptionID string) error
}

type subscriptionFetcher interface {
	GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
}

type eventClaimer interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

type ServiceParams struct {
	Store         subscriptionStore
	Subscriptions subscriptionFetcher
	Events        eventClaimer // optional
	Logger        *logger.Logger
}

// Service mirrors provider subscription events into the subscription store.
// Events are expected to be authenticated by the caller. Apart from deletions,
// the event payload only names the subscription and the written state comes
// from a fresh read of it.
type Service struct {
	store         subscriptionStore
	subscriptions subscriptionFetcher
	events        eventClaimer
	logg          *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscription store required")
	}
	if params.Subscriptions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe subscription client required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		store:         params.Store,
		subscriptions: params.Subscriptions,
		events:        params.Events,
		logg:          params.Logger,
	}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"stripe_event_id":   event.ID,
		"stripe_event_type": string(event.Type),
	})

	switch event.Type {
	case stripe.EventTypeCustomerSubscriptionCreated,
		stripe.EventTypeCustomerSubscriptionUpdated,
		stripe.EventTypeCustomerSubscriptionDeleted,
		stripe.EventTypeInvoicePaid,
		stripe.EventTypeInvoicePaymentFailed:
	default:
		s.logg.Debug(ctx, "ignoring stripe event")
		return nil
	}

	tracked := s.events != nil && event.ID != ""
	if tracked {
		claimed, err := s.events.Claim(ctx, event.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim stripe event")
		}
		if !claimed {
			s.logg.Info(ctx, "stripe event already processed")
			return nil
		}
	}

	err := s.apply(ctx, event)
	if err != nil && tracked {
		if forgetErr := s.events.Forget(ctx, event.ID); forgetErr != nil {
			s.logg.Error(ctx, "failed to forget stripe event claim", forgetErr)
		}
	}
	return err
}

func (s *Service) apply(ctx context.Context, event *stripe.Event) error {
	switch event.Type {
	case stripe.EventTypeInvoicePaid, stripe.EventTypeInvoicePaymentFailed:
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode invoice event")
		}
		subscriptionID := invoiceSubscriptionID(&invoice)
		if subscriptionID == "" {
			s.logg.Debug(ctx, "invoice has no subscription")
			return nil
		}
		return s.syncSubscription(ctx, subscriptionID)
	}

	var stripeSub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &stripeSub); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode subscription event")
	}
	if stripeSub.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "subscription id missing")
	}
	if event.Type == stripe.EventTypeCustomerSubscriptionDeleted {
		return s.remove(ctx, stripeSub.ID)
	}
	return s.syncSubscription(ctx, stripeSub.ID)
}

// syncSubscription writes the provider's current state. A subscription that
// has since been canceled is removed rather than upserted.
func (s *Service) syncSubscription(ctx context.Context, subscriptionID string) error {
	ctx = s.logg.WithField(ctx, "stripe_subscription_id", subscriptionID)
	current, err := s.subscriptions.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch stripe subscription")
	}
	if current == nil || current.ID == "" {
		return pkgerrors.New(pkgerrors.CodeDependency, "stripe returned an empty subscription")
	}
	if current.Status == stripe.SubscriptionStatusCanceled {
		return s.remove(ctx, current.ID)
	}

	input, err := UpsertInputFromStripe(current)
	if err != nil {
		return err
	}
	if input.UserID == uuid.Nil {
		s.logg.Warn(ctx, "subscription metadata has no valid userId; keeping stored owner")
	}
	return s.store.Upsert(ctx, input)
}

func (s *Service) remove(ctx context.Context, subscriptionID string) error {
	err := s.store.Remove(ctx, subscriptionID)
	if errors.Is(err, subscriptions.ErrSubscriptionNotFound) {
		s.logg.Info(ctx, "subscription already removed")
		return nil
	}
	return err
}

func invoiceSubscriptionID(invoice *stripe.Invoice) string {
	if invoice == nil || invoice.Parent == nil || invoice.Parent.SubscriptionDetails == nil {
		return ""
	}
	if sub := invoice.Parent.SubscriptionDetails.Subscription; sub != nil {
		return sub.ID
	}
	return ""
}

// UpsertInputFromStripe maps a provider subscription onto the store's input.
// A missing or malformed userId leaves UserID nil, which the store accepts
// only for rows it already has.
func UpsertInputFromStripe(sub *stripe.Subscription) (subscriptions.UpsertInput, error) {
	if sub == nil {
		return subscriptions.UpsertInput{}, pkgerrors.New(pkgerrors.CodeValidation, "subscription is required")
	}
	userID, err := uuid.Parse(strings.TrimSpace(sub.Metadata[metadataUserID]))
	if err != nil {
		userID = uuid.Nil
	}
	status, err := enums.ParseSubscriptionStatus(string(sub.Status))
	if err != nil {
		return subscriptions.UpsertInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported subscription status")
	}
	plan, err := planType(sub)
	if err != nil {
		return subscriptions.UpsertInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported plan type")
	}

	input := subscriptions.UpsertInput{
		UserID:               userID,
		StripeSubscriptionID: sub.ID,
		Status:               status,
		PlanType:             plan,
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
	}
	if item := firstItem(sub); item != nil {
		input.CurrentPeriodStart = unixPtr(item.CurrentPeriodStart)
		input.CurrentPeriodEnd = unixPtr(item.CurrentPeriodEnd)
	}
	return input, nil
}

func planType(sub *stripe.Subscription) (enums.PlanType, error) {
	if item := firstItem(sub); item != nil && item.Price != nil && item.Price.Recurring != nil {
		if plan, err := enums.ParsePlanType(string(item.Price.Recurring.Interval)); err == nil {
			return plan, nil
		}
	}
	return enums.ParsePlanType(strings.TrimSpace(sub.Metadata[metadataPlanID]))
}

func firstItem(sub *stripe.Subscription) *stripe.SubscriptionItem {
	if sub == nil || sub.Items == nil || len(sub.Items.Data) == 0 {
		return nil
	}
	return sub.Items.Data[0]
}

func unixPtr(seconds int64) *time.Time {
	if seconds <= 0 {
		return nil
	}
	t := time.Unix(seconds, 0).UTC()
	return &t
}
