package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/leagueledger/backend/api/responses"
	pkgerrors "github.com/leagueledger/backend/pkg/errors"
	"github.com/leagueledger/backend/pkg/logger"
)

// RateLimiter counts a hit against scope and reports whether it still fits
// in the current window.
type RateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RateLimit rejects requests beyond limit per window with a 429. A nil
// limiter or non-positive limit disables the check. Limiter failures fail
// open: dropping provider webhooks over a Redis hiccup costs more than a
// short burst.
func RateLimit(limiter RateLimiter, scope string, limit int64, window time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil || limit <= 0 || window <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			allowed, count, err := limiter.FixedWindowAllow(ctx, scope, limit, window)
			if err != nil {
				if logg != nil {
					logg.Warn(ctx, "rate limiter unavailable; allowing request")
				}
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				if logg != nil {
					ctx = logg.WithFields(ctx, map[string]any{
						"scope": scope,
						"count": count,
						"limit": limit,
					})
					logg.Warn(ctx, "rate limit exceeded")
				}
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many requests"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
