package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"payledger/internal/platform/requestctx"
)

type ctxKey string

const ctxKeyUser ctxKey = "user"

func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		ctx := requestctx.WithRequestID(r.Context(), reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetRequestID(ctx context.Context) string {
	return requestctx.GetRequestID(ctx)
}
