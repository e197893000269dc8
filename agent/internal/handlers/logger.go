package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"wallet-watch/shared/logger"
)

const requestIDHeader = "X-Request-ID"

// RequestLogger tags every request with an id and logs its outcome. 5xx
// responses are logged as errors so they reach the ops chat.
func RequestLogger(appLogger *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("requestID", requestID)
		c.Header(requestIDHeader, requestID)

		c.Next()

		fields := []interface{}{
			zap.String("requestID", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("remoteAddr", c.ClientIP()),
		}
		switch status := c.Writer.Status(); {
		case status >= 500:
			appLogger.Error("Request failed", fields...)
		case status >= 400:
			appLogger.Warn("Request rejected", fields...)
		default:
			appLogger.Debug("Request served", fields...)
		}
	}
}

func requestIDField(c *gin.Context) zap.Field {
	return zap.String("requestID", c.GetString("requestID"))
}
