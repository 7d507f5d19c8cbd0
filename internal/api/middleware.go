package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marshallshelly/procuredb/internal/metrics"
	"github.com/marshallshelly/procuredb/pkg/policy"
)

const principalKey = "principal"

// PrincipalResolver turns a verified user id into a principal.
type PrincipalResolver interface {
	Resolve(ctx context.Context, userID uuid.UUID) (policy.Principal, error)
}

// Logger emits one access log line per request.
func Logger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.Stringer("principal", principal(c)),
		}
		if len(c.Errors) > 0 {
			log.Error("request failed", append(fields, zap.String("errors", c.Errors.String()))...)
			return
		}
		log.Info("request completed", fields...)
	}
}

// Metrics counts requests and observes latency by route template.
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.HTTPRequests.WithLabelValues(c.Request.Method, route, status).Inc()
		m.HTTPDuration.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
	}
}

// Authenticate resolves the bearer token, if any, into the request's
// principal. Requests without a token run as the anonymous principal; a
// valid token for a suspended or deleted account is refused.
func Authenticate(tokens *Tokens, resolver PrincipalResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Set(principalKey, policy.Anonymous)
			c.Next()
			return
		}
		scheme, raw, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("invalid authorization format: expected 'Bearer <token>'"))
			return
		}
		userID, err := tokens.Parse(strings.TrimSpace(raw))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("invalid access token"))
			return
		}
		p, err := resolver.Resolve(c.Request.Context(), userID)
		if errors.Is(err, policy.ErrPrincipalDisabled) {
			c.AbortWithStatusJSON(http.StatusForbidden, errorBody("account suspended or inactive"))
			return
		}
		if err != nil {
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody("authentication failed"))
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}

// RequireUser rejects anonymous requests.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !principal(c).Authenticated() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("authentication required"))
			return
		}
		c.Next()
	}
}

// RequireAdmin rejects requests from non-admins.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := principal(c)
		if !p.Authenticated() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("authentication required"))
			return
		}
		if !p.Admin {
			c.AbortWithStatusJSON(http.StatusForbidden, errorBody("insufficient permissions"))
			return
		}
		c.Next()
	}
}

func principal(c *gin.Context) policy.Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(policy.Principal); ok {
			return p
		}
	}
	return policy.Anonymous
}
