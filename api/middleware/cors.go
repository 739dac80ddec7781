package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

const localDevOrigin = "http://localhost:3000"

// CORS returns middleware that lets the web app call the API from its own origin.
func CORS(appOrigin string, allowLocal bool) func(http.Handler) http.Handler {
	origins := []string{appOrigin}
	if allowLocal && appOrigin != localDevOrigin {
		origins = append(origins, localDevOrigin)
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}
