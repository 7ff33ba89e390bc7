package middleware

import (
	"context"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chatcall-backend/pkg/logger"
	"chatcall-backend/pkg/response"
)

// Recovery recovers from panics and returns 500 error
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.FromContext(c.Request.Context()).Error("Panic recovered",
					zap.Any("panic", err),
					zap.String("path", c.Request.URL.Path),
					zap.ByteString("stack", debug.Stack()))

				response.InternalError(c, "Internal server error")
				c.Abort()
			}
		}()
		c.Next()
	}
}

// HealthCheck answers /health before the rest of the chain runs
func HealthCheck(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/health" {
			c.JSON(http.StatusOK, gin.H{
				"status":  "healthy",
				"service": serviceName,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// Pinger is a dependency probed by Readiness
type Pinger interface {
	Ping(ctx context.Context) error
}

// Readiness pings every dependency and answers 503 while any of them fails
func Readiness(timeout time.Duration, deps map[string]Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := make(map[string]string, len(deps))
		ready := true
		for name, dep := range deps {
			ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
			err := dep.Ping(ctx)
			cancel()
			if err != nil {
				logger.Warn("Readiness check failed", zap.String("dependency", name), zap.Error(err))
				checks[name] = err.Error()
				ready = false
				continue
			}
			checks[name] = "ok"
		}

		status, code := "ready", http.StatusOK
		if !ready {
			status, code = "not_ready", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status": status,
			"checks": checks,
		})
	}
}
