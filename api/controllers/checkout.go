package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/learnpay-backend/api/responses"
	"github.com/angelmondragon/learnpay-backend/api/validators"
	checkoutsvc "github.com/angelmondragon/learnpay-backend/internal/checkout"
	"github.com/angelmondragon/learnpay-backend/internal/identity"
	"github.com/angelmondragon/learnpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/learnpay-backend/pkg/errors"
	"github.com/angelmondragon/learnpay-backend/pkg/logger"
)

const courseIDMaxLen = 64

// CheckoutService opens hosted checkout sessions on behalf of the caller.
type CheckoutService interface {
	CreateCourseCheckout(ctx context.Context, caller *identity.Caller, courseID string) (*checkoutsvc.Result, error)
	CreateSubscriptionCheckout(ctx context.Context, caller *identity.Caller, plan enums.PlanType) (*checkoutsvc.Result, error)
}

type subscriptionCheckoutRequest struct {
	PlanID string `json:"plan_id" validate:"required,oneof=month year"`
}

// CourseCheckout starts a one-time payment for the course in the path.
func CourseCheckout(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		courseID := validators.SanitizeString(chi.URLParam(r, "courseId"), courseIDMaxLen)
		if courseID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "course id is required"))
			return
		}

		result, err := svc.CreateCourseCheckout(r.Context(), identity.CallerFromContext(r.Context()), courseID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// SubscriptionCheckout starts a pro plan subscription for the requested cadence.
func SubscriptionCheckout(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		// An anonymous caller is rejected before the body is looked at.
		caller := identity.CallerFromContext(r.Context())
		if caller == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, identity.ErrUnauthorized, "unauthorized"))
			return
		}

		var payload subscriptionCheckoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CreateSubscriptionCheckout(r.Context(), caller, enums.PlanType(payload.PlanID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
