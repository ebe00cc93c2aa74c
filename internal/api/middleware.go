package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jameshendricken/iot-dashboard/internal/models"
	"github.com/jameshendricken/iot-dashboard/internal/service"
)

// SessionCookieName is the cookie carrying the authenticated email.
const SessionCookieName = "session_email"

const (
	identityKey  = "identity"
	requestIDKey = "requestId"
)

// IdentityMiddleware resolves the session cookie to a user identity and
// attaches it to the request context. It is deliberately fail-open: a missing
// cookie, an unknown email, or a store error during lookup all leave the
// request anonymous. This middleware never aborts the pipeline; handlers that
// require identity answer 401 themselves.
func IdentityMiddleware(svc service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		email, err := c.Cookie(SessionCookieName)
		if err != nil || email == "" {
			c.Next()
			return
		}

		ident, err := svc.ResolveIdentity(c.Request.Context(), email)
		if err != nil || ident == nil {
			// Stale cookie or store outage: treat as anonymous
			c.Next()
			return
		}

		c.Set(identityKey, ident)
		c.Next()
	}
}

// CurrentIdentity returns the resolved identity for the request, or nil for
// an anonymous request.
func CurrentIdentity(c *gin.Context) *models.Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil
	}

	ident, ok := v.(*models.Identity)
	if !ok {
		return nil
	}

	return ident
}

// RequestIDMiddleware assigns a UUID to each request and echoes it in the
// X-Request-ID response header.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.New().String()
		c.Set(requestIDKey, id)
		c.Writer.Header().Set("X-Request-ID", id)
		c.Next()
	}
}

// RequestLogger emits one structured log line per request.
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("request_id", c.GetString(requestIDKey)).
			Msg("request")
	}
}
