package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/learnpay-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/learnpay-backend/pkg/errors"
)

type stubUsers struct {
	users map[string]*models.User
	err   error
	calls int
}

func (s *stubUsers) FindByClerkID(ctx context.Context, clerkID string) (*models.User, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	user, ok := s.users[clerkID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return user, nil
}

func TestResolveUserWithoutCallerIsUnauthorized(t *testing.T) {
	users := &stubUsers{}
	gate, err := NewGate(users)
	if err != nil {
		t.Fatalf("new gate: %v", err)
	}

	for _, caller := range []*Caller{nil, {Subject: " "}} {
		_, err := gate.ResolveUser(context.Background(), caller)
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
		if !pkgerrors.Is(err, pkgerrors.CodeUnauthorized) {
			t.Fatalf("expected unauthorized code, got %v", err)
		}
	}
	if users.calls != 0 {
		t.Fatalf("lookup should not run without a caller")
	}
}

func TestResolveUserUnknownSubject(t *testing.T) {
	gate, _ := NewGate(&stubUsers{users: map[string]*models.User{}})

	_, err := gate.ResolveUser(context.Background(), &Caller{Subject: "user_x"})
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if !pkgerrors.Is(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found code, got %v", err)
	}
}

func TestResolveUserReturnsUser(t *testing.T) {
	user := &models.User{ID: uuid.New(), ClerkID: "user_1", StripeCustomerID: "cus_1"}
	gate, _ := NewGate(&stubUsers{users: map[string]*models.User{"user_1": user}})

	got, err := gate.ResolveUser(context.Background(), &Caller{Subject: "user_1"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.ID != user.ID {
		t.Fatalf("unexpected user %s", got.ID)
	}
}

func TestResolveUserLookupFailure(t *testing.T) {
	gate, _ := NewGate(&stubUsers{err: errors.New("connection reset")})

	_, err := gate.ResolveUser(context.Background(), &Caller{Subject: "user_1"})
	if !pkgerrors.Is(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestCallerContextRoundTrip(t *testing.T) {
	ctx := WithCaller(context.Background(), &Caller{Subject: "user_1"})
	if got := CallerFromContext(ctx); got == nil || got.Subject != "user_1" {
		t.Fatalf("unexpected caller %+v", got)
	}
	if CallerFromContext(context.Background()) != nil {
		t.Fatalf("expected nil caller")
	}
	if WithCaller(context.Background(), nil) == nil {
		t.Fatalf("expected context")
	}
}

func TestNewGateRequiresRepository(t *testing.T) {
	if _, err := NewGate(nil); err == nil {
		t.Fatalf("expected error")
	}
}
