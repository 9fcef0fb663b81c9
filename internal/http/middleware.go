package http

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sujalbistaa/entrenous/internal/admin"
	"github.com/sujalbistaa/entrenous/internal/apperr"
	"github.com/sujalbistaa/entrenous/internal/auth"
	"github.com/sujalbistaa/entrenous/internal/banguard"
	"github.com/sujalbistaa/entrenous/internal/logger"
)

const (
	ctxRequestID = "request_id"
	ctxUserID    = "user_id"
)

// RequestIDMiddleware propagates X-Request-ID, generating one when absent.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}
		c.Set(ctxRequestID, requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// GinLoggerMiddleware replaces gin.Logger with structured zap logging.
func GinLoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			logger.WithRoute(c.FullPath()),
			logger.WithIP(c.ClientIP()),
			logger.WithStatus(status),
			logger.WithDuration(time.Since(start)),
			logger.WithRequestID(c.GetString(ctxRequestID)),
		}
		if id := c.GetUint(ctxUserID); id != 0 {
			fields = append(fields, logger.WithUserID(id))
		}

		switch {
		case status >= 500:
			logger.Log.Error("HTTP request", fields...)
		case status >= 400:
			logger.Log.Warn("HTTP request", fields...)
		default:
			logger.Log.Info("HTTP request", fields...)
		}
	}
}

// OutcomeMiddleware feeds every finished request into the admin aggregator.
func OutcomeMiddleware(agg *admin.Aggregator) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		agg.RecordOutcome(c.Request.Method+" "+route, time.Since(start), c.Writer.Status())
	}
}

// BanGuardMiddleware refuses callers inside an active ban before any handler runs.
func BanGuardMiddleware(guard *banguard.Guard, agg *admin.Aggregator) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		d := guard.Check(c.Request.Context(), ip)
		if !d.Allowed {
			agg.RecordDenial()
			logger.Log.Warn("Request denied by IP ban",
				logger.WithIP(ip),
				zap.String("prefix", d.Prefix),
				logger.WithRequestID(c.GetString(ctxRequestID)),
			)
			abortForbidden(c)
			return
		}
		c.Next()
	}
}

// SecurityHeadersMiddleware adds basic security headers for a JSON API.
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "no-referrer")
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Next()
	}
}

// RateLimitMiddleware applies the per-IP write budget.
func RateLimitMiddleware(limiter *IPRateLimiter, agg *admin.Aggregator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			agg.RecordRateLimited()
			respondError(c, apperr.RateLimited())
			return
		}
		c.Next()
	}
}

// AdminAuthMiddleware checks the X-Admin-Token header. An empty token is a
// misconfiguration and panics at startup.
func AdminAuthMiddleware(requiredToken string) gin.HandlerFunc {
	if requiredToken == "" {
		panic("CRITICAL: X_ADMIN_TOKEN is not set")
	}
	required := []byte(requiredToken)

	return func(c *gin.Context) {
		supplied := c.GetHeader("X-Admin-Token")
		if supplied == "" {
			respondError(c, apperr.Unauthorized("admin token required"))
			return
		}
		if subtle.ConstantTimeCompare([]byte(supplied), required) != 1 {
			abortForbidden(c)
			return
		}
		c.Next()
	}
}

// BearerAuthMiddleware resolves the caller identity from the Authorization header.
func BearerAuthMiddleware(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
			respondError(c, apperr.Unauthorized("missing bearer token"))
			return
		}
		userID, err := svc.ValidateToken(strings.TrimSpace(token))
		if err != nil {
			respondError(c, err)
			return
		}
		c.Set(ctxUserID, userID)
		c.Next()
	}
}

func callerID(c *gin.Context) uint {
	return c.GetUint(ctxUserID)
}

func abortForbidden(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusForbidden, errorBody{Error: string(apperr.KindForbidden), Message: "forbidden"})
}
