package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/learnpay-backend/pkg/logger"
	"github.com/angelmondragon/learnpay-backend/pkg/types"
)

const (
	requestIDHeader   = types.RequestIDHeader
	maxRequestIDBytes = 128
)

// RequestID propagates a caller-supplied request id or mints a UUID when the
// header is absent or unusable.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get(requestIDHeader)
			if !validRequestID(reqID) {
				reqID = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, reqID)

			if logg != nil {
				r = r.WithContext(logg.WithRequestID(r.Context(), reqID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDBytes {
		return false
	}
	for i := 0; i < len(id); i++ {
		if c := id[i]; c < 0x21 || c > 0x7e {
			return false
		}
	}
	return true
}
