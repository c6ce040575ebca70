package middleware

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clinichub/clinic-backend/internal/http/response"
	"github.com/clinichub/clinic-backend/pkg/logger"
)

// RateLimiter is a fixed-window per-client limiter backed by Redis, used on
// the unauthenticated auth endpoints to slow credential stuffing.
type RateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

func NewRateLimiter(client *redis.Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{client: client, limit: limit, window: window}
}

func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		key := fmt.Sprintf("ratelimit:%s:%s", r.URL.Path, host)

		ctx := r.Context()
		count, err := rl.client.Incr(ctx, key).Result()
		if err != nil {
			// Fail open: a Redis outage must not take logins down with it.
			logger.WarnContext(ctx, "Rate limit check failed", "error", err)
			next.ServeHTTP(w, r)
			return
		}
		if count == 1 {
			rl.client.Expire(ctx, key, rl.window)
		}
		if count > int64(rl.limit) {
			response.Error(w, http.StatusTooManyRequests, "too many requests, slow down")
			return
		}

		next.ServeHTTP(w, r)
	})
}
