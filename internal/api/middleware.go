package api

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"sinilikhain/internal/auth"
	"sinilikhain/internal/models"
	"sinilikhain/internal/service"
	"sinilikhain/internal/util"

	"github.com/gin-gonic/gin"
)

const claimsKey = "claims"

// TokenParser verifies bearer tokens.
type TokenParser interface {
	Parse(token string) (*auth.Claims, error)
}

// Authenticate requires a valid "Authorization: Bearer <jwt>" header and
// stores its claims on the context
func Authenticate(tokens TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			respondError(c, fmt.Errorf("%w: %v", models.ErrUnauthorized, auth.ErrNoToken))
			return
		}

		claims, err := tokens.Parse(strings.TrimSpace(raw))
		if err != nil {
			respondError(c, err)
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// RequireRole rejects callers whose role is not one of roles
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := actorFrom(c)
		for _, r := range roles {
			if actor.Role == r {
				c.Next()
				return
			}
		}
		respondError(c, fmt.Errorf("%w: requires role %s", models.ErrForbidden, strings.Join(roles, " or ")))
	}
}

// actorFrom returns the authenticated caller, or the zero Actor on public routes.
func actorFrom(c *gin.Context) service.Actor {
	v, ok := c.Get(claimsKey)
	if !ok {
		return service.Actor{}
	}
	claims := v.(*auth.Claims)
	return service.Actor{UserID: claims.UserID, Role: claims.Role}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		util.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).
			Observe(time.Since(start).Seconds())
		util.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}
