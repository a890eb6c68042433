package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// CORS returns a middleware allowing any origin to call the profile API.
// Request id and trace headers are accepted so browser clients can correlate
// logs, and Last-Event-ID is accepted for the upload event stream.
func CORS() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodHead,
			http.MethodPost,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Content-Type",
			"Last-Event-ID",
			middleware.RequestIDHeader,
			"traceparent",
		},
		ExposedHeaders: []string{"Link", "Location", middleware.RequestIDHeader},
		MaxAge:         300,
	})
}
