package middleware

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/sightline-obs/sightline-core/internal/config"
)

// RateLimiter enforces the per-tenant request budget with a token bucket
// per tenant. Buckets refill at the per-minute budget and allow the full
// budget as burst, so dashboard fan-outs on page load are not penalized.
func RateLimiter(cfg config.RateLimitConfig) gin.HandlerFunc {
	if !cfg.Enabled || cfg.PerMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	var (
		mu       sync.Mutex
		limiters = make(map[string]*rate.Limiter)
	)
	perSecond := rate.Limit(float64(cfg.PerMinute) / 60.0)

	return func(c *gin.Context) {
		tenant := TenantFromContext(c)
		if tenant == "" {
			tenant = c.ClientIP()
		}

		mu.Lock()
		limiter, ok := limiters[tenant]
		if !ok {
			limiter = rate.NewLimiter(perSecond, cfg.PerMinute)
			limiters[tenant] = limiter
		}
		mu.Unlock()

		if !limiter.Allow() {
			c.Header("Retry-After", "60")
			c.JSON(http.StatusTooManyRequests, gin.H{
				"status": "error",
				"error":  "rate limit exceeded",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
