package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/familyshare/familyshare/internal/auth"
	"github.com/familyshare/familyshare/internal/cache"
)

// Limiter runs token-bucket checks. *cache.Cache satisfies it.
type Limiter interface {
	CheckUserRateLimit(ctx context.Context, scope, userID string, ratePerSecond float64, burst int) (*cache.RateLimitResult, error)
	CheckIPRateLimit(ctx context.Context, ip string, ratePerSecond, burst int) (*cache.RateLimitResult, error)
}

// RateLimitConfig holds configuration for rate limiting middleware.
// A nil Limiter or Enabled=false turns every limiter into a pass-through.
type RateLimitConfig struct {
	Logger  *slog.Logger
	Limiter Limiter
	Enabled bool
}

// bucketCheck resolves the bucket for r. ok=false skips limiting.
type bucketCheck func(r *http.Request) (subject string, res *cache.RateLimitResult, ok bool, err error)

// RateLimitUser limits each authenticated user within scope, e.g. check-in
// requests per hour. Must be applied after Auth; anonymous requests pass.
func RateLimitUser(cfg RateLimitConfig, scope string, ratePerSecond float64, burst int) func(http.Handler) http.Handler {
	return rateLimit(cfg, scope, burst, func(r *http.Request) (string, *cache.RateLimitResult, bool, error) {
		userID := auth.UserID(r.Context())
		if userID == "" {
			return "", nil, false, nil
		}
		res, err := cfg.Limiter.CheckUserRateLimit(r.Context(), scope, userID, ratePerSecond, burst)
		return userID, res, true, err
	})
}

// RateLimitIP limits each client address. Applied ahead of Auth to slow down
// token guessing. Relies on chi's RealIP having resolved RemoteAddr.
func RateLimitIP(cfg RateLimitConfig, rps, burst int) func(http.Handler) http.Handler {
	return rateLimit(cfg, "ip", burst, func(r *http.Request) (string, *cache.RateLimitResult, bool, error) {
		res, err := cfg.Limiter.CheckIPRateLimit(r.Context(), getClientIP(r), rps, burst)
		return "", res, true, err
	})
}

func rateLimit(cfg RateLimitConfig, scope string, burst int, check bucketCheck) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !cfg.Enabled || cfg.Limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, res, ok, err := check(r)
			switch {
			case !ok:
				next.ServeHTTP(w, r)
				return
			case err != nil:
				// Fail open: Redis trouble must not take the API down.
				cfg.Logger.Error("rate_limit_check_failed",
					slog.String("scope", scope),
					slog.String("error", err.Error()),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				next.ServeHTTP(w, r)
				return
			}

			setRateLimitHeaders(w, burst, res)
			if res.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			attrs := []any{
				slog.String("scope", scope),
				slog.String("endpoint", r.Method+" "+r.URL.Path),
				slog.Int64("retry_after_seconds", retryAfterSeconds(res.RetryAfter)),
				slog.String("request_id", GetRequestID(r.Context())),
			}
			if subject != "" {
				attrs = append(attrs, slog.String("user_id", subject))
			}
			cfg.Logger.Warn("rate_limit_exceeded", attrs...)
			writeRateLimitError(w, res.RetryAfter)
		})
	}
}

func setRateLimitHeaders(w http.ResponseWriter, limit int, res *cache.RateLimitResult) {
	if limit <= 0 {
		return
	}
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	h.Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
}

// retryAfterSeconds rounds up so clients never retry too early.
func retryAfterSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 1
	}
	return int64(math.Ceil(d.Seconds()))
}

func writeRateLimitError(w http.ResponseWriter, retryAfter time.Duration) {
	secs := retryAfterSeconds(retryAfter)
	w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	writeJSONError(w, http.StatusTooManyRequests, "RATE_LIMITED",
		fmt.Sprintf("Rate limit exceeded. Retry after %d seconds.", secs))
}

// getClientIP returns the host part of RemoteAddr.
func getClientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
