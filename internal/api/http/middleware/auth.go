package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/fleetops/botpanel/internal/auth"
	"github.com/gin-gonic/gin"
)

const apiKeyHeader = "X-API-Key"

// Auth accepts either a Bearer session token or the admin API key. The API
// key path exists for scripted access; key holders act as admin.
func Auth(jwtSecret, adminAPIKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key := c.GetHeader(apiKeyHeader); key != "" && adminAPIKey != "" {
			if subtle.ConstantTimeCompare([]byte(key), []byte(adminAPIKey)) == 1 {
				c.Set("username", "api-key")
				c.Set("role", "admin")
				c.Next()
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			return
		}

		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid authorization header"})
			return
		}

		token := strings.TrimPrefix(header, "Bearer ")
		claims, err := auth.ValidateToken(jwtSecret, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("username", claims.Username)
		c.Set("role", claims.Role)
		c.Next()
	}
}

// RequireRole rejects requests whose authenticated role is not listed.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get("role")
		if !exists {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}

		userRole, ok := role.(string)
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}

		for _, r := range roles {
			if r == userRole {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	}
}
