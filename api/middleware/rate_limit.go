package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/psecars/merch-backend/api/responses"
	pkgerrors "github.com/psecars/merch-backend/pkg/errors"
	"github.com/psecars/merch-backend/pkg/logger"
)

type rateLimiterStore interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RateLimitPolicy allows limit requests per window for one named surface.
// A zero window or limit disables it.
type RateLimitPolicy struct {
	name   string
	window time.Duration
	limit  int64
}

func NewRateLimitPolicy(name string, window time.Duration, limit int) RateLimitPolicy {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "default"
	}
	return RateLimitPolicy{name: name, window: window, limit: int64(limit)}
}

func (p RateLimitPolicy) off() bool { return p.window <= 0 || p.limit <= 0 }

// subject identifies who is being counted: the cart session when one is
// bound, else the client address. RemoteAddr is already rewritten by
// chi's RealIP when proxy headers are trusted.
func (p RateLimitPolicy) subject(r *http.Request) (kind, key string) {
	if sid := CartSessionFromContext(r.Context()); sid != "" {
		return "session", p.name + ":session:" + sid
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host == "" {
		return "", ""
	}
	return "ip", p.name + ":ip:" + host
}

// RateLimit counts requests per subject in a fixed window and answers 429
// with Retry-After once the policy is exhausted. A limiter outage fails closed
// with a 503.
func RateLimit(policy RateLimitPolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if policy.off() || store == nil {
			return next
		}
		windowSecs := strconv.Itoa(int(policy.window.Seconds()))
		limit := strconv.FormatInt(policy.limit, 10)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			kind, key := policy.subject(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			ok, used, err := store.FixedWindowAllow(ctx, key, policy.limit, policy.window)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiter unavailable"))
				return
			}
			w.Header().Set("X-RateLimit-Limit", limit)
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(max(policy.limit-used, 0), 10))
			if ok {
				next.ServeHTTP(w, r)
				return
			}

			if logg != nil {
				logg.Warn(logg.WithFields(ctx, map[string]any{
					"policy":   policy.name,
					"subject":  kind,
					"attempts": used,
					"limit":    policy.limit,
				}), "rate_limit.blocked")
			}
			w.Header().Set("Retry-After", windowSecs)
			responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many requests, slow down"))
		})
	}
}
