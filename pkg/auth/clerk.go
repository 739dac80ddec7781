package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid identity token")

var allowedAlgs = []string{
	jwt.SigningMethodRS256.Alg(),
	jwt.SigningMethodRS384.Alg(),
	jwt.SigningMethodRS512.Alg(),
	jwt.SigningMethodES256.Alg(),
}

// Verifier validates identity tokens.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

type keyfuncCtx func(ctx context.Context) jwt.Keyfunc

// ClerkVerifier validates Clerk-issued JWTs against the issuer's JWKS.
type ClerkVerifier struct {
	issuer  string
	keyfunc keyfuncCtx
}

// NewClerkVerifier fetches the issuer's JWKS and keeps it refreshed in the background.
func NewClerkVerifier(ctx context.Context, issuer, jwksURL string) (*ClerkVerifier, error) {
	issuer = strings.TrimRight(strings.TrimSpace(issuer), "/")
	if issuer == "" {
		return nil, fmt.Errorf("clerk issuer URL is required")
	}
	jwks, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("fetch JWKS from %s: %w", jwksURL, err)
	}
	return &ClerkVerifier{issuer: issuer, keyfunc: jwks.KeyfuncCtx}, nil
}

func newVerifierWithKeyfunc(issuer string, fn jwt.Keyfunc) *ClerkVerifier {
	return &ClerkVerifier{
		issuer:  issuer,
		keyfunc: func(context.Context) jwt.Keyfunc { return fn },
	}
}

// Verify parses the token and returns the caller identity.
func (v *ClerkVerifier) Verify(ctx context.Context, tokenStr string) (*Identity, error) {
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return nil, ErrInvalidToken
	}

	claims := &IdentityClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, v.keyfunc(ctx),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods(allowedAlgs),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return &Identity{
		Subject:   claims.Subject,
		SessionID: claims.SessionID,
	}, nil
}
