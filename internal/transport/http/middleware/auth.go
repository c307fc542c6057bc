package middleware

import (
	"context"
	"net/http"
	"strings"

	"payledger/internal/domain/auth"
)

// Auth attaches the bearer token's principal to the request context. Requests
// without a valid token continue anonymously and are rejected by
// RequirePermission where it matters.
func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := auth.ParseToken(secret, parts[1])
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), auth.UserContext{
				UserID:   claims.UserID,
				Email:    claims.Email,
				RoleName: claims.RoleName,
			})))
		})
	}
}

func WithUser(ctx context.Context, user auth.UserContext) context.Context {
	return context.WithValue(ctx, ctxKeyUser, user)
}

func GetUser(ctx context.Context) (auth.UserContext, bool) {
	user, ok := ctx.Value(ctxKeyUser).(auth.UserContext)
	return user, ok
}
