package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/presenza-app/backend/internal/auth"
	"github.com/presenza-app/backend/pkg/response"
)

const (
	// ContextUserID is the key for staff user ID in gin context.
	ContextUserID = "user_id"
	// ContextUserRole is the key for staff role in gin context.
	ContextUserRole = "user_role"
	// ContextUserEmail is the key for staff email in gin context.
	ContextUserEmail = "user_email"
)

// JWT returns a middleware that validates staff tokens and sets claims in context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserRole, claims.Role)
		c.Set(ContextUserEmail, claims.Email)
		c.Next()
	}
}

// RequireRole returns a middleware that allows only the given roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(c *gin.Context) {
		role := c.GetString(ContextUserRole)
		if !allowed[role] {
			response.Forbidden(c, "insufficient role")
			c.Abort()
			return
		}
		c.Next()
	}
}
