// Package auth guards the control-surface HTTP endpoint with a bearer token.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const bearerPrefix = "Bearer "

// NewAuthMiddleware returns middleware requiring "Authorization: Bearer
// <token>". The prefix is case-sensitive and followed by exactly one space.
// An empty token disables authentication. Requests for any of the exempt
// paths pass without a token.
func NewAuthMiddleware(token string, exempt ...string) func(http.Handler) http.Handler {
	open := make(map[string]struct{}, len(exempt))
	for _, p := range exempt {
		open[p] = struct{}{}
	}
	want := []byte(token)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			if _, ok := open[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, bearerPrefix) {
				unauthorized(w)
				return
			}
			provided := []byte(header[len(bearerPrefix):])
			if len(provided) == 0 || subtle.ConstantTimeCompare(provided, want) != 1 {
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="spindownd"`)
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}
