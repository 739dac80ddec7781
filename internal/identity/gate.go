package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/angelmondragon/learnpay-backend/internal/repo"
	"github.com/angelmondragon/learnpay-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/learnpay-backend/pkg/errors"
)

var (
	// ErrUnauthorized is returned when no caller identity is present.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUserNotFound is returned when the caller subject has no user row.
	ErrUserNotFound = errors.New("user not found")
)

// Caller is the verified identity attached to an operation.
type Caller struct {
	Subject string
}

type userLookup interface {
	FindByClerkID(ctx context.Context, clerkID string) (*models.User, error)
}

// Gate maps a caller identity to a user record.
type Gate struct {
	users userLookup
}

// NewGate builds a Gate backed by the users repository.
func NewGate(users userLookup) (*Gate, error) {
	if users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "users repository required")
	}
	return &Gate{users: users}, nil
}

// ResolveUser returns the user for the caller. It has no side effects.
func (g *Gate) ResolveUser(ctx context.Context, caller *Caller) (*models.User, error) {
	if caller == nil || strings.TrimSpace(caller.Subject) == "" {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, ErrUnauthorized, "unauthorized")
	}
	user, err := g.users.FindByClerkID(ctx, caller.Subject)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, ErrUserNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	return user, nil
}
