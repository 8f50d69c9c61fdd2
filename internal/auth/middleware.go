package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const hostIDKey = "host_id"

// Middleware requires a Bearer host token when auth is enabled and stores
// the host id on the context. When disabled it stores the default host.
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.Enabled() {
			c.Set(hostIDKey, hostOrDefault(""))
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "Authorization header required")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			abortUnauthorized(c, "Invalid authorization header format. Expected: Bearer <token>")
			return
		}

		claims, err := a.ValidateToken(parts[1])
		if err != nil {
			abortUnauthorized(c, "Invalid or expired token")
			return
		}

		c.Set(hostIDKey, claims.HostID)
		c.Next()
	}
}

// HostID returns the host id set by Middleware, or the default host
func HostID(c *gin.Context) string {
	if v, exists := c.Get(hostIDKey); exists {
		if id, ok := v.(string); ok {
			return hostOrDefault(id)
		}
	}
	return hostOrDefault("")
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":   "unauthorized",
		"code":    http.StatusUnauthorized,
		"message": message,
	})
}
