package middleware

import (
	"context"
	"net/http"

	"github.com/formbricks/themes/internal/api/response"
)

// RequestBodyTooLargeRecorder records when a request is rejected for exceeding the body limit.
// Pass nil when metrics are disabled.
type RequestBodyTooLargeRecorder interface {
	RecordRequestBodyTooLarge(ctx context.Context)
}

// MaxBody limits request bodies to maxBytes. A declared Content-Length over the limit is rejected
// with 413 before the handler runs; a body that turns out longer fails the handler's decode, which
// answers 413 through validation.DecodeJSONBody. Use 0 or negative to disable.
func MaxBody(maxBytes int64, recorder RequestBodyTooLargeRecorder) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				if recorder != nil {
					recorder.RecordRequestBodyTooLarge(r.Context())
				}

				response.RespondError(w, http.StatusRequestEntityTooLarge,
					"Request Entity Too Large", "request body exceeds maximum allowed size")

				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
