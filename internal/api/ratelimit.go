package api

import (
	"net/http"
	"sync"

	"github.com/labstack/echo/v5"
	"golang.org/x/time/rate"
)

// RateLimit returns middleware that throttles each client IP to rps requests
// per second with the given burst. Limiters are created on first sight and
// kept for the life of the server.
func RateLimit(rps rate.Limit, burst int) echo.MiddlewareFunc {
	var (
		mu       sync.Mutex
		limiters = make(map[string]*rate.Limiter)
	)
	limiterFor := func(ip string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		l, ok := limiters[ip]
		if !ok {
			l = rate.NewLimiter(rps, burst)
			limiters[ip] = l
		}
		return l
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			if !limiterFor(c.RealIP()).Allow() {
				return writeError(c, http.StatusTooManyRequests, "rate_limited",
					"too many requests")
			}
			return next(c)
		}
	}
}
