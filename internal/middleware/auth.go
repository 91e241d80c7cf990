// Package middleware provides the Gin middleware chain.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"patrasaar-go/pkg/token"
)

// userIDKey is the context key the auth middleware stores the caller under.
const userIDKey = "userID"

// AuthMiddleware verifies the bearer token and stores the caller's user id
// in the request context.
func AuthMiddleware(jwtManager *token.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{"message": "Missing authorization header", "code": "UNAUTHORIZED"}})
			return
		}

		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{"message": "Invalid authorization header format", "code": "UNAUTHORIZED"}})
			return
		}
		tokenString := strings.TrimPrefix(authHeader, bearerPrefix)

		claims, err := jwtManager.VerifyToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{"message": "Invalid or expired token", "code": "UNAUTHORIZED"}})
			return
		}

		c.Set(userIDKey, claims.UserID)
		c.Next()
	}
}

// UserID returns the authenticated caller's id from the request context.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
