package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	requestIDHeader     = "X-Request-Id"
	requestIDContextKey = "requestID"
	loggerContextKey    = "logger"
)

// RequestID keeps an incoming X-Request-Id or assigns a fresh one, and echoes it back.
func RequestID() gin.HandlerFunc {
	return RequestIDWithGenerator(uuid.NewString)
}

func RequestIDWithGenerator(generate func() string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if id == "" {
			id = generate()
		}
		c.Set(requestIDContextKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func RequestIDFromContext(c *gin.Context) string {
	return c.GetString(requestIDContextKey)
}

// Logger attaches a request-scoped zap logger and logs one line per request.
func Logger(base *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		logger := base.With(zap.String("request_id", RequestIDFromContext(c)))
		c.Set(loggerContextKey, logger)

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		switch status := c.Writer.Status(); {
		case status >= 500:
			logger.Error("request", fields...)
		case status >= 400:
			logger.Warn("request", fields...)
		default:
			logger.Info("request", fields...)
		}
	}
}

// LoggerFromContext returns the request logger, or the global one outside Logger.
func LoggerFromContext(c *gin.Context) *zap.Logger {
	if v, ok := c.Get(loggerContextKey); ok {
		if logger, ok := v.(*zap.Logger); ok {
			return logger
		}
	}
	return zap.L()
}
