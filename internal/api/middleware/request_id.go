// Package middleware holds the HTTP middleware of the themes API.
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/formbricks/themes/internal/observability"
)

const (
	requestIDHeader = "X-Request-ID"
	maxRequestIDLen = 128
)

// RequestID runs first in the chain: every request gets an X-Request-ID in its context and in the
// response header. A well-formed client id is propagated; anything else is replaced.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if !validRequestID(id) {
			id = uuid.Must(uuid.NewV7()).String()
		}

		ctx := context.WithValue(r.Context(), observability.RequestIDKey, id)
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// validRequestID accepts non-empty printable ASCII ids of bounded length so they are safe in logs.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}

	for i := range len(id) {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}

	return true
}
