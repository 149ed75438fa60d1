package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// RateLimit allows perMinute requests per caller with a burst of the same
// size. Callers are keyed by user id when signed in, otherwise by client IP.
// Idle limiters are dropped after ten minutes.
func RateLimit(perMinute int) func(http.Handler) http.Handler {
	limiters := cache.New(10*time.Minute, 5*time.Minute)
	every := rate.Every(time.Minute / time.Duration(max(perMinute, 1)))
	return func(next http.Handler) http.Handler {
		if perMinute <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rateLimitKey(r)
			var lim *rate.Limiter
			if v, ok := limiters.Get(key); ok {
				lim = v.(*rate.Limiter)
			} else {
				lim = rate.NewLimiter(every, perMinute)
				if err := limiters.Add(key, lim, cache.DefaultExpiration); err != nil {
					if v, ok := limiters.Get(key); ok {
						lim = v.(*rate.Limiter)
					}
				}
			}
			limiters.Set(key, lim, cache.DefaultExpiration)
			if !lim.Allow() {
				w.Header().Set("Retry-After", strconv.Itoa(int(time.Minute/time.Duration(perMinute)/time.Second)+1))
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rateLimitKey(r *http.Request) string {
	if id := IdentityFromContext(r.Context()); id.Authenticated {
		return "user:" + id.ID
	}
	return "ip:" + remoteHost(r)
}
