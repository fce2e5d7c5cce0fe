package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sightline-obs/sightline-core/pkg/logger"
)

const requestIDHeader = "X-Request-ID"

// RequestLogger tags every request with an id and logs its outcome. Callers
// that bring their own X-Request-ID keep it, which lets the dashboard stitch
// its own traces to ours.
func RequestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)
		c.Set("requestID", requestID)

		started := time.Now()
		c.Next()

		log.Info("request completed",
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"tenant", TenantFromContext(c),
			"took", time.Since(started),
		)
	}
}
