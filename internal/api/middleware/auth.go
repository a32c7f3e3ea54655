package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mariocelzo/Target-sub000/internal/auth"
	"github.com/mariocelzo/Target-sub000/internal/utils"
)

// ContextKeyUserID holds the key for the session user ID in the Gin context.
const ContextKeyUserID = "userID"

// AuthMiddleware creates a Gin middleware for JWT authentication. The session
// user is made available to handlers via the context; there is no ambient
// "current user" state anywhere else.
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be Bearer {token}"})
			return
		}

		claims, err := auth.ValidateJWT(parts[1], jwtSecret)
		if err != nil {
			errMsg := fmt.Sprintf("Invalid or expired token: %v", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errMsg})
			return
		}

		userID, err := utils.ParseSixID(claims.UserID)
		if err != nil || userID.IsZero() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token subject"})
			return
		}

		c.Set(ContextKeyUserID, userID)
		c.Next()
	}
}

// SessionUserID extracts the authenticated user's ID from the Gin context.
// It returns false if AuthMiddleware did not run.
func SessionUserID(c *gin.Context) (utils.SixID, bool) {
	v, exists := c.Get(ContextKeyUserID)
	if !exists {
		return utils.SixID{}, false
	}
	id, ok := v.(utils.SixID)
	return id, ok
}
