package middleware

import (
	"net/http"

	"github.com/jansunwai/assistant/internal/service/auth"
)

// Credentials reads the citizen's session credentials from each request and
// stores them in the request context for handlers to forward.
func Credentials(forwardCookies []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			creds := auth.FromRequest(r, forwardCookies)
			next.ServeHTTP(w, r.WithContext(auth.WithCredentials(r.Context(), creds)))
		})
	}
}
