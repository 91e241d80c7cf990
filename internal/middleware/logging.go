package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"patrasaar-go/pkg/log"
)

// RequestLogger records one structured log line per request. Bodies are not
// captured; uploads and token streams make them unbounded.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		log.Infow("HTTP Request Log",
			"statusCode", c.Writer.Status(),
			"latency", time.Since(startTime).String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
		)
	}
}
