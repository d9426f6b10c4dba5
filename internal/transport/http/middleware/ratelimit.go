package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"clinic/internal/transport/http/api"
	"clinic/internal/transport/http/shared"
)

const (
	limiterIdleTTL    = 10 * time.Minute
	limiterSweepAfter = 4096
)

type RateLimitKeyFunc func(r *http.Request) string

type RateLimitOption func(*rateLimiter)

func WithKeyFunc(fn RateLimitKeyFunc) RateLimitOption {
	return func(rl *rateLimiter) {
		if fn != nil {
			rl.keyFn = fn
		}
	}
}

func withClock(now func() time.Time) RateLimitOption {
	return func(rl *rateLimiter) {
		rl.now = now
	}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter keeps one token bucket per key, refilled evenly across the minute with a full minute of burst.
type rateLimiter struct {
	mu        sync.Mutex
	perMinute int
	keyFn     RateLimitKeyFunc
	entries   map[string]*limiterEntry
	now       func() time.Time
}

func newRateLimiter(perMinute int, keyFn RateLimitKeyFunc, opts ...RateLimitOption) *rateLimiter {
	if keyFn == nil {
		keyFn = actorOrIPKey
	}
	rl := &rateLimiter{
		perMinute: perMinute,
		keyFn:     keyFn,
		entries:   map[string]*limiterEntry{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(rl)
	}
	return rl
}

// RateLimit applies perMinute requests per actor (or client ip when anonymous) to every request.
func RateLimit(perMinute int, opts ...RateLimitOption) func(http.Handler) http.Handler {
	rl := newRateLimiter(perMinute, actorOrIPKey, opts...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.enforce(w, r) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SensitiveMutationRateLimit gives posting, voiding, exporting and seeding their own, tighter per-actor budget.
func SensitiveMutationRateLimit(basePerMinute int, opts ...RateLimitOption) func(http.Handler) http.Handler {
	rl := newRateLimiter(max(basePerMinute/4, 1), actorOrIPKey, opts...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sensitiveRequest(r) && !rl.enforce(w, r) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func actorOrIPKey(r *http.Request) string {
	if user, ok := GetUser(r.Context()); ok && user.UserID != "" {
		return "user:" + user.UserID
	}
	return "ip:" + shared.ClientIP(r)
}

func (rl *rateLimiter) limiterFor(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if len(rl.entries) >= limiterSweepAfter {
		for k, e := range rl.entries {
			if now.Sub(e.lastSeen) > limiterIdleTTL {
				delete(rl.entries, k)
			}
		}
	}
	entry, ok := rl.entries[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(float64(rl.perMinute)/60), rl.perMinute)}
		rl.entries[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

func (rl *rateLimiter) enforce(w http.ResponseWriter, r *http.Request) bool {
	if rl.perMinute <= 0 {
		return true
	}
	key := rl.keyFn(r)
	now := rl.now()
	limiter := rl.limiterFor(key, now)

	reservation := limiter.ReserveN(now, 1)
	delay := reservation.DelayFrom(now)
	if delay > 0 {
		reservation.CancelAt(now)
	}

	remaining := int(math.Max(math.Floor(limiter.TokensAt(now)), 0))
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.perMinute))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

	if delay > 0 {
		retry := int(math.Ceil(delay.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(max(retry, 1)))
		slog.Warn("rate limit exceeded",
			"key", key,
			"path", r.URL.Path,
			"method", r.Method,
			"perMinute", rl.perMinute,
		)
		api.Fail(w, http.StatusTooManyRequests, "rate_limited", "too many requests", GetRequestID(r.Context()))
		return false
	}
	return true
}

func sensitiveRequest(r *http.Request) bool {
	path := normalizedAPIPath(r.URL.Path)
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) < 3 || segments[0] != "payroll" {
		return false
	}
	switch r.Method {
	case http.MethodPost:
		if segments[1] == "periods" && len(segments) == 4 && segments[3] == "runs" {
			return true
		}
		if segments[1] == "runs" && len(segments) == 4 {
			switch segments[3] {
			case "post", "void", "records":
				return true
			}
		}
	case http.MethodGet:
		return segments[1] == "runs" && len(segments) >= 4 && segments[3] == "export"
	}
	return false
}

func normalizedAPIPath(path string) string {
	cleaned := strings.TrimPrefix(strings.TrimSpace(path), "/api/v1")
	if !strings.HasPrefix(cleaned, "/") {
		return "/" + cleaned
	}
	return cleaned
}
