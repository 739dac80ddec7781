package subscriptions

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/learnpay-backend/api/responses"
	"github.com/angelmondragon/learnpay-backend/internal/identity"
	"github.com/angelmondragon/learnpay-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/learnpay-backend/pkg/errors"
	"github.com/angelmondragon/learnpay-backend/pkg/logger"
)

// UserResolver maps the request caller to a users row.
type UserResolver interface {
	ResolveUser(ctx context.Context, caller *identity.Caller) (*models.User, error)
}

// Reader loads the current subscription of a user.
type Reader interface {
	Get(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
}

type subscriptionResponse struct {
	ID                   uuid.UUID  `json:"id"`
	StripeSubscriptionID string     `json:"stripe_subscription_id"`
	Status               string     `json:"status"`
	PlanType             string     `json:"plan_type"`
	CurrentPeriodStart   *time.Time `json:"current_period_start,omitempty"`
	CurrentPeriodEnd     *time.Time `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd    bool       `json:"cancel_at_period_end"`
}

// CurrentSubscription returns the caller's current subscription, or null when none is set.
func CurrentSubscription(gate UserResolver, store Reader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if gate == nil || store == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		user, err := gate.ResolveUser(r.Context(), identity.CallerFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := store.Get(r.Context(), user.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSubscriptionResponse(sub))
	}
}

func newSubscriptionResponse(sub *models.Subscription) *subscriptionResponse {
	if sub == nil {
		return nil
	}
	return &subscriptionResponse{
		ID:                   sub.ID,
		StripeSubscriptionID: sub.StripeSubscriptionID,
		Status:               sub.Status.String(),
		PlanType:             sub.PlanType.String(),
		CurrentPeriodStart:   sub.CurrentPeriodStart,
		CurrentPeriodEnd:     sub.CurrentPeriodEnd,
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
	}
}
