package checkout

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/learnpay-backend/internal/identity"
	"github.com/angelmondragon/learnpay-backend/pkg/db/models"
	"github.com/angelmondragon/learnpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/learnpay-backend/pkg/errors"
	"github.com/angelmondragon/learnpay-backend/pkg/logger"
	"github.com/angelmondragon/learnpay-backend/pkg/metrics"
	pkgstripe "github.com/angelmondragon/learnpay-backend/pkg/stripe"
)

type stubGate struct {
	user *models.User
	err  error
}

func (s *stubGate) ResolveUser(ctx context.Context, caller *identity.Caller) (*models.User, error) {
	if caller == nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, identity.ErrUnauthorized, "unauthorized")
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.user, nil
}

type stubCourses struct {
	courses map[uuid.UUID]*models.Course
	err     error
}

func (s *stubCourses) FindByID(ctx context.Context, id uuid.UUID) (*models.Course, error) {
	if s.err != nil {
		return nil, s.err
	}
	course, ok := s.courses[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return course, nil
}

type stubLimiter struct {
	deny map[string]bool
	err  error
	keys []string
}

func (s *stubLimiter) Allow(ctx context.Context, key string) (bool, error) {
	s.keys = append(s.keys, key)
	if s.err != nil {
		return false, s.err
	}
	return !s.deny[key], nil
}

type stubSessions struct {
	url      string
	err      error
	requests []pkgstripe.CheckoutSessionRequest
}

func (s *stubSessions) CreateCheckoutSession(ctx context.Context, req pkgstripe.CheckoutSessionRequest) (*pkgstripe.CheckoutSession, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	return &pkgstripe.CheckoutSession{ID: "cs_test_1", URL: s.url}, nil
}

type fixture struct {
	user     *models.User
	course   *models.Course
	gate     *stubGate
	courses  *stubCourses
	limiter  *stubLimiter
	sessions *stubSessions
	service  *Service
}

func newFixture(t *testing.T, price string, prices PriceIDs) *fixture {
	t.Helper()
	user := &models.User{ID: uuid.New(), ClerkID: "user_1", StripeCustomerID: "cus_123"}
	course := &models.Course{ID: uuid.New(), Title: "Go Patterns", Price: decimal.RequireFromString(price), ImageURL: "https://cdn.test/go.png"}
	f := &fixture{
		user:     user,
		course:   course,
		gate:     &stubGate{user: user},
		courses:  &stubCourses{courses: map[uuid.UUID]*models.Course{course.ID: course}},
		limiter:  &stubLimiter{deny: map[string]bool{}},
		sessions: &stubSessions{url: "https://checkout.stripe.test/c/pay/cs_test_1"},
	}
	service, err := NewService(ServiceParams{
		Gate:     f.gate,
		Courses:  f.courses,
		Limiter:  f.limiter,
		Sessions: f.sessions,
		Logger:   logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Metrics:  metrics.NewCheckoutMetrics(prometheus.NewRegistry()),
		BaseURL:  "https://learnpay.test/",
		Prices:   prices,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	f.service = service
	return f
}

func caller() *identity.Caller {
	return &identity.Caller{Subject: "user_1"}
}

func TestCreateCourseCheckoutBuildsPaymentSession(t *testing.T) {
	f := newFixture(t, "19.99", PriceIDs{})

	result, err := f.service.CreateCourseCheckout(context.Background(), caller(), f.course.ID.String())
	if err != nil {
		t.Fatalf("create course checkout: %v", err)
	}
	if result.CheckoutURL == nil || *result.CheckoutURL != f.sessions.url {
		t.Fatalf("expected provider url returned verbatim, got %v", result.CheckoutURL)
	}
	if len(f.limiter.keys) != 1 || f.limiter.keys[0] != "checkout-rate-limit:"+f.user.ID.String() {
		t.Fatalf("unexpected rate limit keys %v", f.limiter.keys)
	}
	if len(f.sessions.requests) != 1 {
		t.Fatalf("expected one session request")
	}
	req := f.sessions.requests[0]
	if req.Mode != pkgstripe.ModePayment || req.CustomerID != "cus_123" {
		t.Fatalf("unexpected mode/customer %s/%s", req.Mode, req.CustomerID)
	}
	if len(req.PaymentMethodTypes) != 1 || req.PaymentMethodTypes[0] != "card" {
		t.Fatalf("expected card payment method, got %v", req.PaymentMethodTypes)
	}
	item := req.LineItems[0]
	if item.UnitAmount != 1999 || item.Currency != "usd" || item.Quantity != 1 {
		t.Fatalf("unexpected line item %+v", item)
	}
	if item.ProductName != "Go Patterns" || len(item.ProductImages) != 1 {
		t.Fatalf("unexpected product data %+v", item)
	}
	wantSuccess := "https://learnpay.test/courses/" + f.course.ID.String() + "/success?session_id={CHECKOUT_SESSION_ID}"
	if req.SuccessURL != wantSuccess {
		t.Fatalf("unexpected success url %s", req.SuccessURL)
	}
	if req.CancelURL != "https://learnpay.test/courses" {
		t.Fatalf("unexpected cancel url %s", req.CancelURL)
	}
	wantMeta := map[string]string{
		"courseId":       f.course.ID.String(),
		"userId":         f.user.ID.String(),
		"courseTitle":    "Go Patterns",
		"courseImageUrl": "https://cdn.test/go.png",
	}
	for k, v := range wantMeta {
		if req.Metadata[k] != v {
			t.Fatalf("metadata %s: expected %q got %q", k, v, req.Metadata[k])
		}
	}
	if req.SubscriptionMetadata != nil {
		t.Fatalf("payment session should not carry subscription metadata")
	}
}

func TestCreateCourseCheckoutRoundsHalfUp(t *testing.T) {
	cases := map[string]int64{
		"10.005": 1001,
		"0.125":  13,
		"49":     4900,
		"0.994":  99,
	}
	for price, want := range cases {
		f := newFixture(t, price, PriceIDs{})
		if _, err := f.service.CreateCourseCheckout(context.Background(), caller(), f.course.ID.String()); err != nil {
			t.Fatalf("price %s: %v", price, err)
		}
		if got := f.sessions.requests[0].LineItems[0].UnitAmount; got != want {
			t.Fatalf("price %s: expected %d got %d", price, want, got)
		}
	}
}

func TestCreateCourseCheckoutNullURL(t *testing.T) {
	f := newFixture(t, "5.00", PriceIDs{})
	f.sessions.url = ""

	result, err := f.service.CreateCourseCheckout(context.Background(), caller(), f.course.ID.String())
	if err != nil {
		t.Fatalf("create course checkout: %v", err)
	}
	if result.CheckoutURL != nil {
		t.Fatalf("expected nil url, got %q", *result.CheckoutURL)
	}
}

func TestCreateCourseCheckoutUnauthorized(t *testing.T) {
	f := newFixture(t, "5.00", PriceIDs{})

	_, err := f.service.CreateCourseCheckout(context.Background(), nil, f.course.ID.String())
	if !errors.Is(err, identity.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if len(f.limiter.keys) != 0 || len(f.sessions.requests) != 0 {
		t.Fatalf("nothing should run for unauthenticated callers")
	}
}

func TestCreateCourseCheckoutUserNotFound(t *testing.T) {
	f := newFixture(t, "5.00", PriceIDs{})
	f.gate.err = pkgerrors.Wrap(pkgerrors.CodeNotFound, identity.ErrUserNotFound, "user not found")

	_, err := f.service.CreateCourseCheckout(context.Background(), caller(), f.course.ID.String())
	if !errors.Is(err, identity.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestCreateCourseCheckoutRateLimited(t *testing.T) {
	f := newFixture(t, "5.00", PriceIDs{})
	f.limiter.deny["checkout-rate-limit:"+f.user.ID.String()] = true

	_, err := f.service.CreateCourseCheckout(context.Background(), caller(), f.course.ID.String())
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if !pkgerrors.Is(err, pkgerrors.CodeRateLimit) {
		t.Fatalf("expected rate limit code, got %v", err)
	}
	if len(f.sessions.requests) != 0 {
		t.Fatalf("no session should be created when rate limited")
	}
}

func TestCreateCourseCheckoutRateLimitedBeforeCourseLookup(t *testing.T) {
	f := newFixture(t, "5.00", PriceIDs{})
	f.limiter.deny["checkout-rate-limit:"+f.user.ID.String()] = true

	_, err := f.service.CreateCourseCheckout(context.Background(), caller(), uuid.NewString())
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited for unknown course, got %v", err)
	}
}

func TestCreateCourseCheckoutCourseNotFound(t *testing.T) {
	f := newFixture(t, "5.00", PriceIDs{})

	for _, id := range []string{uuid.NewString(), "not-a-uuid"} {
		_, err := f.service.CreateCourseCheckout(context.Background(), caller(), id)
		if !errors.Is(err, ErrCourseNotFound) {
			t.Fatalf("expected ErrCourseNotFound for %q, got %v", id, err)
		}
		if !pkgerrors.Is(err, pkgerrors.CodeNotFound) {
			t.Fatalf("expected not found code, got %v", err)
		}
	}
}

func TestCreateCourseCheckoutProviderFailure(t *testing.T) {
	f := newFixture(t, "5.00", PriceIDs{})
	f.sessions.err = errors.New("stripe unavailable")

	_, err := f.service.CreateCourseCheckout(context.Background(), caller(), f.course.ID.String())
	if !pkgerrors.Is(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestCreateCourseCheckoutLimiterFailure(t *testing.T) {
	f := newFixture(t, "5.00", PriceIDs{})
	f.limiter.err = errors.New("redis down")

	_, err := f.service.CreateCourseCheckout(context.Background(), caller(), f.course.ID.String())
	if !pkgerrors.Is(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestCreateSubscriptionCheckoutMapsPlans(t *testing.T) {
	f := newFixture(t, "5.00", PriceIDs{Monthly: "price_month", Yearly: "price_year"})

	for _, tc := range []struct {
		plan    enums.PlanType
		priceID string
		year    string
	}{
		{enums.PlanTypeMonth, "price_month", "year=false"},
		{enums.PlanTypeYear, "price_year", "year=true"},
	} {
		result, err := f.service.CreateSubscriptionCheckout(context.Background(), caller(), tc.plan)
		if err != nil {
			t.Fatalf("plan %s: %v", tc.plan, err)
		}
		if result.CheckoutURL == nil {
			t.Fatalf("plan %s: expected url", tc.plan)
		}
		req := f.sessions.requests[len(f.sessions.requests)-1]
		if req.Mode != pkgstripe.ModeSubscription {
			t.Fatalf("unexpected mode %s", req.Mode)
		}
		if req.LineItems[0].PriceID != tc.priceID || req.LineItems[0].Quantity != 1 {
			t.Fatalf("plan %s: unexpected line item %+v", tc.plan, req.LineItems[0])
		}
		if req.PaymentMethodTypes != nil {
			t.Fatalf("subscription flow should not pin payment methods")
		}
		if !strings.HasPrefix(req.SuccessURL, "https://learnpay.test/pro/success?session_id={CHECKOUT_SESSION_ID}&") || !strings.HasSuffix(req.SuccessURL, tc.year) {
			t.Fatalf("unexpected success url %s", req.SuccessURL)
		}
		if req.CancelURL != "https://learnpay.test/pro" {
			t.Fatalf("unexpected cancel url %s", req.CancelURL)
		}
		if req.Metadata["userId"] != f.user.ID.String() || req.Metadata["planId"] != string(tc.plan) {
			t.Fatalf("unexpected metadata %v", req.Metadata)
		}
		if req.SubscriptionMetadata["userId"] != f.user.ID.String() {
			t.Fatalf("expected subscription metadata, got %v", req.SubscriptionMetadata)
		}
	}
	if f.limiter.keys[0] != "pro-plan-rate-limit:"+f.user.ID.String() {
		t.Fatalf("unexpected rate limit key %s", f.limiter.keys[0])
	}
}

func TestCreateSubscriptionCheckoutPriceNotConfigured(t *testing.T) {
	for _, tc := range []struct {
		prices PriceIDs
		plan   enums.PlanType
	}{
		{PriceIDs{Yearly: "price_year"}, enums.PlanTypeMonth},
		{PriceIDs{Monthly: "price_month"}, enums.PlanTypeYear},
	} {
		f := newFixture(t, "5.00", tc.prices)
		_, err := f.service.CreateSubscriptionCheckout(context.Background(), caller(), tc.plan)
		if !errors.Is(err, ErrPriceNotConfigured) {
			t.Fatalf("plan %s: expected ErrPriceNotConfigured, got %v", tc.plan, err)
		}
		if !pkgerrors.Is(err, pkgerrors.CodeConfiguration) {
			t.Fatalf("expected configuration code, got %v", err)
		}
		if len(f.sessions.requests) != 0 {
			t.Fatalf("no session should be created without a price")
		}
	}
}

func TestCreateSubscriptionCheckoutRejectsUnknownPlan(t *testing.T) {
	f := newFixture(t, "5.00", PriceIDs{Monthly: "price_month", Yearly: "price_year"})

	_, err := f.service.CreateSubscriptionCheckout(context.Background(), caller(), enums.PlanType("week"))
	if !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateSubscriptionCheckoutRateLimited(t *testing.T) {
	f := newFixture(t, "5.00", PriceIDs{Monthly: "price_month", Yearly: "price_year"})
	f.limiter.deny["pro-plan-rate-limit:"+f.user.ID.String()] = true

	_, err := f.service.CreateSubscriptionCheckout(context.Background(), caller(), enums.PlanTypeMonth)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestNewServiceValidatesParams(t *testing.T) {
	if _, err := NewService(ServiceParams{}); err == nil {
		t.Fatalf("expected error for missing dependencies")
	}
	_, err := NewService(ServiceParams{
		Gate:     &stubGate{},
		Courses:  &stubCourses{},
		Limiter:  &stubLimiter{},
		Sessions: &stubSessions{},
		Logger:   logger.New(logger.Options{Output: io.Discard}),
	})
	if err == nil {
		t.Fatalf("expected error for missing base url")
	}
}
