package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/learnpay-backend/api/responses"
	"github.com/angelmondragon/learnpay-backend/api/validators"
	"github.com/angelmondragon/learnpay-backend/internal/identity"
	pkgAuth "github.com/angelmondragon/learnpay-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/learnpay-backend/pkg/errors"
	"github.com/angelmondragon/learnpay-backend/pkg/logger"
)

// Identity verifies a Clerk bearer token and seeds the request context with the caller.
// Requests without credentials pass through with no caller attached.
func Identity(verifier pkgAuth.Verifier, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}

			token, err := validators.BearerToken(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid credentials"))
				return
			}
			if verifier == nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "identity verifier unavailable"))
				return
			}

			id, err := verifier.Verify(r.Context(), token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := identity.WithCaller(r.Context(), &identity.Caller{Subject: id.Subject})
			if logg != nil {
				ctx = logg.WithSubject(ctx, id.Subject)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
