package middleware

import (
	"net/http"

	"payledger/internal/transport/http/api"
)

// BodyLimit caps request bodies at maxBytes. A declared length over the cap
// is refused up front; chunked bodies are cut off by MaxBytesReader.
func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxBytes <= 0 || r.Body == nil || r.Body == http.NoBody {
				next.ServeHTTP(w, r)
				return
			}
			if r.ContentLength > maxBytes {
				api.Fail(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large", GetRequestID(r.Context()))
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
