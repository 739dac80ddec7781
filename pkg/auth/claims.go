package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// IdentityClaims is the subset of a Clerk session token used by the API.
type IdentityClaims struct {
	SessionID string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the verified caller resolved from a session token.
type Identity struct {
	Subject   string
	SessionID string
}
