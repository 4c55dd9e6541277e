package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimit gives every client IP a token bucket of limit requests that
// refills over per. A non-positive limit disables it.
func RateLimit(limit int, per time.Duration) func(http.Handler) http.Handler {
	var mu sync.Mutex
	clients := make(map[string]*client)
	lastSweep := time.Now()
	return func(next http.Handler) http.Handler {
		if limit <= 0 || per <= 0 {
			return next
		}
		every := rate.Every(per / time.Duration(limit))
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)
			now := time.Now()
			mu.Lock()
			// An idle bucket is full again after per, so dropping it is lossless.
			if now.Sub(lastSweep) > per {
				for k, c := range clients {
					if now.Sub(c.lastSeen) > per {
						delete(clients, k)
					}
				}
				lastSweep = now
			}
			c, ok := clients[ip]
			if !ok {
				c = &client{limiter: rate.NewLimiter(every, limit)}
				clients[ip] = c
			}
			c.lastSeen = now
			mu.Unlock()

			if c.limiter.AllowN(now, 1) {
				next.ServeHTTP(w, r)
				return
			}
			res := c.limiter.ReserveN(now, 1)
			wait := res.DelayFrom(now)
			res.CancelAt(now)
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"code":"rate_limited","message":"too many requests"}}`))
		})
	}
}
