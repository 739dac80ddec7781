package checkout

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/learnpay-backend/internal/identity"
	"github.com/angelmondragon/learnpay-backend/internal/repo"
	"github.com/angelmondragon/learnpay-backend/pkg/db/models"
	"github.com/angelmondragon/learnpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/learnpay-backend/pkg/errors"
	"github.com/angelmondragon/learnpay-backend/pkg/logger"
	"github.com/angelmondragon/learnpay-backend/pkg/metrics"
	pkgstripe "github.com/angelmondragon/learnpay-backend/pkg/stripe"
)

const (
	courseRateLimitPrefix = "checkout-rate-limit:"
	planRateLimitPrefix   = "pro-plan-rate-limit:"
	sessionIDPlaceholder  = "{CHECKOUT_SESSION_ID}"
	defaultCurrency       = "usd"
	cardPaymentMethod     = "card"

	flowCourse       = "course"
	flowSubscription = "subscription"
)

var (
	ErrCourseNotFound      = errors.New("course not found")
	ErrRateLimited         = errors.New("rate limit exceeded")
	ErrPriceNotConfigured  = errors.New("price id not configured")
	errCheckoutUnavailable = errors.New("checkout session unavailable")
)

type userResolver interface {
	ResolveUser(ctx context.Context, caller *identity.Caller) (*models.User, error)
}

type courseLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Course, error)
}

// RateLimiter admits or rejects a request identified by key.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type sessionCreator interface {
	CreateCheckoutSession(ctx context.Context, req pkgstripe.CheckoutSessionRequest) (*pkgstripe.CheckoutSession, error)
}

// PriceIDs maps subscription plans to pre-provisioned provider prices.
type PriceIDs struct {
	Monthly string
	Yearly  string
}

// For returns the configured price for the plan, or "" when unset.
func (p PriceIDs) For(plan enums.PlanType) string {
	switch plan {
	case enums.PlanTypeMonth:
		return strings.TrimSpace(p.Monthly)
	case enums.PlanTypeYear:
		return strings.TrimSpace(p.Yearly)
	default:
		return ""
	}
}

// ServiceParams groups dependencies for the checkout service.
type ServiceParams struct {
	Gate     userResolver
	Courses  courseLoader
	Limiter  RateLimiter
	Sessions sessionCreator
	Logger   *logger.Logger
	Metrics  *metrics.CheckoutMetrics
	BaseURL  string
	Currency string
	Prices   PriceIDs
}

// Result carries the hosted checkout URL. CheckoutURL is nil when the provider returned none.
type Result struct {
	CheckoutURL *string `json:"checkout_url"`
}

// Service creates hosted checkout sessions for courses and pro plans.
type Service struct {
	gate     userResolver
	courses  courseLoader
	limiter  RateLimiter
	sessions sessionCreator
	logg     *logger.Logger
	metrics  *metrics.CheckoutMetrics
	baseURL  string
	currency string
	prices   PriceIDs
}

// NewService builds a checkout service with the required dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Gate == nil {
		return nil, fmt.Errorf("identity gate required")
	}
	if params.Courses == nil {
		return nil, fmt.Errorf("courses repository required")
	}
	if params.Limiter == nil {
		return nil, fmt.Errorf("rate limiter required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("session creator required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(params.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("base url required")
	}
	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	return &Service{
		gate:     params.Gate,
		courses:  params.Courses,
		limiter:  params.Limiter,
		sessions: params.Sessions,
		logg:     params.Logger,
		metrics:  params.Metrics,
		baseURL:  baseURL,
		currency: currency,
		prices:   params.Prices,
	}, nil
}

// CreateCourseCheckout opens a one-time payment session for the course.
func (s *Service) CreateCourseCheckout(ctx context.Context, caller *identity.Caller, courseID string) (*Result, error) {
	user, err := s.gate.ResolveUser(ctx, caller)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithUserID(ctx, user.ID.String())

	if err := s.admit(ctx, courseRateLimitPrefix+user.ID.String(), flowCourse); err != nil {
		return nil, err
	}

	course, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}

	req := pkgstripe.CheckoutSessionRequest{
		Mode:               pkgstripe.ModePayment,
		CustomerID:         user.StripeCustomerID,
		PaymentMethodTypes: []string{cardPaymentMethod},
		LineItems: []pkgstripe.CheckoutLineItem{{
			Currency:      s.currency,
			UnitAmount:    MinorUnits(course.Price),
			ProductName:   course.Title,
			ProductImages: nonEmpty(course.ImageURL),
			Quantity:      1,
		}},
		SuccessURL: fmt.Sprintf("%s/courses/%s/success?session_id=%s", s.baseURL, course.ID, sessionIDPlaceholder),
		CancelURL:  s.baseURL + "/courses",
		Metadata: map[string]string{
			"courseId":       course.ID.String(),
			"userId":         user.ID.String(),
			"courseTitle":    course.Title,
			"courseImageUrl": course.ImageURL,
		},
	}
	ctx = s.logg.WithField(ctx, "course_id", course.ID.String())
	return s.submit(ctx, req)
}

// CreateSubscriptionCheckout opens a subscription session for the pro plan.
func (s *Service) CreateSubscriptionCheckout(ctx context.Context, caller *identity.Caller, plan enums.PlanType) (*Result, error) {
	user, err := s.gate.ResolveUser(ctx, caller)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithUserID(ctx, user.ID.String())

	if !plan.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown plan %q", plan))
	}

	if err := s.admit(ctx, planRateLimitPrefix+user.ID.String(), flowSubscription); err != nil {
		return nil, err
	}

	priceID := s.prices.For(plan)
	if priceID == "" {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConfiguration, ErrPriceNotConfigured, fmt.Sprintf("price id not configured for plan %q", plan))
	}

	metadata := map[string]string{
		"userId": user.ID.String(),
		"planId": plan.String(),
	}
	req := pkgstripe.CheckoutSessionRequest{
		Mode:       pkgstripe.ModeSubscription,
		CustomerID: user.StripeCustomerID,
		LineItems: []pkgstripe.CheckoutLineItem{{
			PriceID:  priceID,
			Quantity: 1,
		}},
		SuccessURL:           fmt.Sprintf("%s/pro/success?session_id=%s&year=%t", s.baseURL, sessionIDPlaceholder, plan == enums.PlanTypeYear),
		CancelURL:            s.baseURL + "/pro",
		Metadata:             metadata,
		SubscriptionMetadata: maps.Clone(metadata),
	}
	ctx = s.logg.WithField(ctx, "plan", plan.String())
	return s.submit(ctx, req)
}

func (s *Service) admit(ctx context.Context, key, flow string) error {
	allowed, err := s.limiter.Allow(ctx, key)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiter unavailable")
	}
	if !allowed {
		s.metrics.IncRateLimited(flow)
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"event": "checkout.rate_limit.blocked", "flow": flow}), "checkout rate limited")
		return pkgerrors.Wrap(pkgerrors.CodeRateLimit, ErrRateLimited, "rate limit exceeded")
	}
	return nil
}

func (s *Service) loadCourse(ctx context.Context, rawID string) (*models.Course, error) {
	notFound := pkgerrors.Wrap(pkgerrors.CodeNotFound, ErrCourseNotFound, "course not found")
	id, err := uuid.Parse(strings.TrimSpace(rawID))
	if err != nil {
		return nil, notFound
	}
	course, err := s.courses.FindByID(ctx, id)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, notFound
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load course")
	}
	return course, nil
}

func (s *Service) submit(ctx context.Context, req pkgstripe.CheckoutSessionRequest) (*Result, error) {
	sess, err := s.sessions.CreateCheckoutSession(ctx, req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout session")
	}
	if sess == nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, errCheckoutUnavailable, "create checkout session")
	}
	s.metrics.IncSessionCreated(req.Mode)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"event":      "checkout.session.created",
		"mode":       req.Mode,
		"session_id": sess.ID,
	}), "checkout session created")

	result := &Result{}
	if sess.URL != "" {
		url := sess.URL
		result.CheckoutURL = &url
	}
	return result, nil
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
