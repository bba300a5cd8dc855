package middleware

import (
	"net/http"

	"github.com/go-chi/cors"

	"github.com/vendorisland/vendorisland-backend/pkg/config"
)

const retryAfterHeader = "Retry-After"

// CORS lets the vendor dashboard call the API with bearer tokens. Only the
// configured origins are echoed back; everything else gets no CORS headers.
func CORS(cfg config.CORSConfig) func(http.Handler) http.Handler {
	maxAge := int(cfg.MaxAge.Seconds())
	if maxAge <= 0 {
		maxAge = 300
	}
	return cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", idempotencyHeader, requestIDHeader},
		// Browsers hide response headers unless they are listed here.
		ExposedHeaders:   []string{requestIDHeader, replayedHeader, retryAfterHeader},
		AllowCredentials: true,
		MaxAge:           maxAge,
	}).Handler
}
