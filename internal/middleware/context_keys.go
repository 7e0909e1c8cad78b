package middleware

import "github.com/gin-gonic/gin"

// userIDKey is the key used to store the authenticated user's ID.
// Using a custom type prevents collisions.
const userIDKey = contextKey("userID")

// GetUserIDFromContext retrieves the authenticated user ID set by
// AuthMiddleware. It checks the Gin context first and falls back to the
// standard request context, returning the ID and whether it was found.
func GetUserIDFromContext(c *gin.Context) (string, bool) {
	if val, exists := c.Get(string(userIDKey)); exists {
		if userID, ok := val.(string); ok {
			return userID, true
		}
		return "", false
	}

	if val, ok := c.Request.Context().Value(userIDKey).(string); ok {
		return val, true
	}
	return "", false
}
