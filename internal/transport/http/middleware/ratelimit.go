package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"payledger/internal/transport/http/api"
)

type RateLimitKeyFunc func(r *http.Request) string

type RateLimitOption func(*rateLimiter)

type rateBucket struct {
	count int
	reset time.Time
}

type rateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	keyFn   RateLimitKeyFunc
	clients map[string]*rateBucket
}

func WithKeyFunc(fn RateLimitKeyFunc) RateLimitOption {
	return func(rl *rateLimiter) {
		if fn != nil {
			rl.keyFn = fn
		}
	}
}

func RateLimit(limit int, window time.Duration, opts ...RateLimitOption) func(http.Handler) http.Handler {
	rl := newRateLimiter(limit, window, actorOrIPKey)
	for _, opt := range opts {
		opt(rl)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.enforce(w, r) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SensitiveMutationRateLimit applies tighter limits to salary authorization
// routes. Code confirmations are also limited per employee so a guesser
// cannot spread attempts across accounts.
func SensitiveMutationRateLimit(baseLimit int, window time.Duration) func(http.Handler) http.Handler {
	codeLimit := max(baseLimit/4, 1)
	mutationLimit := max(baseLimit/2, 1)
	codeByActor := newRateLimiter(codeLimit, window, actorOrIPKey)
	codeByEmployee := newRateLimiter(codeLimit, window, employeePathKey)
	sensitiveByActor := newRateLimiter(mutationLimit, window, actorOrIPKey)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scope := sensitiveRateScope(r)
			switch scope {
			case sensitiveScopeCode:
				if !codeByActor.enforce(w, r) {
					return
				}
				if !codeByEmployee.enforce(w, r) {
					return
				}
			case sensitiveScopeActor:
				if !sensitiveByActor.enforce(w, r) {
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// employeePathKey keys on the employee identity segment of
// /employees/{identity}/...
func employeePathKey(r *http.Request) string {
	parts := strings.Split(strings.Trim(normalizedAPIPath(r.URL.Path), "/"), "/")
	if len(parts) >= 2 && parts[0] == "employees" && parts[1] != "" {
		return "employee:" + strings.ToUpper(parts[1])
	}
	return clientIPKey(r)
}

func actorOrIPKey(r *http.Request) string {
	if user, ok := GetUser(r.Context()); ok && user.UserID != "" {
		return "user:" + user.UserID
	}
	return clientIPKey(r)
}

func clientIPKey(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		parts := strings.Split(fwd, ",")
		if len(parts) > 0 {
			value := strings.TrimSpace(parts[0])
			if value != "" {
				return value
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}

func newRateLimiter(limit int, window time.Duration, keyFn RateLimitKeyFunc) *rateLimiter {
	if keyFn == nil {
		keyFn = actorOrIPKey
	}
	return &rateLimiter{
		limit:   limit,
		window:  window,
		keyFn:   keyFn,
		clients: map[string]*rateBucket{},
	}
}

func (rl *rateLimiter) enforce(w http.ResponseWriter, r *http.Request) bool {
	if rl.limit <= 0 {
		return true
	}

	key := rl.keyFn(r)
	if key == "" {
		key = clientIPKey(r)
	}
	now := time.Now()

	rl.mu.Lock()
	bucket, ok := rl.clients[key]
	if !ok || now.After(bucket.reset) {
		bucket = &rateBucket{count: 0, reset: now.Add(rl.window)}
		rl.clients[key] = bucket
	}
	bucket.count++
	remaining := rl.limit - bucket.count
	resetIn := durationSeconds(bucket.reset.Sub(now))
	overLimit := bucket.count > rl.limit
	rl.mu.Unlock()

	w.Header().Set("X-RateLimit-Limit", itoa(rl.limit))
	w.Header().Set("X-RateLimit-Remaining", itoa(max(remaining, 0)))
	w.Header().Set("X-RateLimit-Reset", itoa(resetIn))

	if overLimit {
		w.Header().Set("Retry-After", itoa(max(resetIn, 1)))
		slog.Warn("rate limit exceeded",
			"key", key,
			"path", r.URL.Path,
			"method", r.Method,
			"limit", rl.limit,
			"windowSec", int(rl.window.Seconds()),
		)
		api.Fail(w, http.StatusTooManyRequests, "rate_limited", "too many requests", GetRequestID(r.Context()))
		return false
	}

	return true
}

func durationSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	seconds := int(d.Seconds())
	if seconds <= 0 {
		return 1
	}
	return seconds
}

type sensitiveScope string

const (
	sensitiveScopeNone  sensitiveScope = ""
	sensitiveScopeCode  sensitiveScope = "code"
	sensitiveScopeActor sensitiveScope = "actor"
)

func sensitiveRateScope(r *http.Request) sensitiveScope {
	if r == nil {
		return sensitiveScopeNone
	}
	method := strings.ToUpper(strings.TrimSpace(r.Method))
	if method != http.MethodPost && method != http.MethodPut && method != http.MethodPatch && method != http.MethodDelete {
		return sensitiveScopeNone
	}

	path := normalizedAPIPath(r.URL.Path)
	switch path {
	case "/maintenance/migrate-legacy",
		"/maintenance/sweep-pending":
		return sensitiveScopeActor
	}

	if !strings.HasPrefix(path, "/employees/") {
		return sensitiveScopeNone
	}
	if strings.HasSuffix(path, "/salary-updates/confirm") {
		return sensitiveScopeCode
	}
	if strings.HasSuffix(path, "/salary-updates") || strings.HasSuffix(path, "/migrate") {
		return sensitiveScopeActor
	}
	if method == http.MethodDelete && strings.Count(path, "/") == 2 {
		return sensitiveScopeActor
	}

	return sensitiveScopeNone
}

func normalizedAPIPath(path string) string {
	cleaned := strings.TrimSpace(path)
	if strings.HasPrefix(cleaned, "/api/v1") {
		cleaned = strings.TrimPrefix(cleaned, "/api/v1")
	}
	if cleaned == "" {
		return "/"
	}
	if !strings.HasPrefix(cleaned, "/") {
		return "/" + cleaned
	}
	return cleaned
}

func itoa(value int) string {
	return strconv.Itoa(value)
}
