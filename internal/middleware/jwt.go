package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/certforge/backend/internal/auth"
	"github.com/certforge/backend/pkg/response"
)

const (
	// ContextUserRole is the key for user role in gin context.
	ContextUserRole = "user_role"
	// ContextUserEmail is the key for user email in gin context.
	ContextUserEmail = "user_email"
)

// JWT returns a middleware that validates JWT and sets user claims in context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		// WebSocket clients cannot set headers; they pass ?token= instead.
		if header == "" && c.Query("token") != "" {
			header = "Bearer " + c.Query("token")
		}
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
		c.Set(ContextUserRole, claims.Role)
		c.Set(ContextUserEmail, claims.Email)
		c.Next()
	}
}

// Organizer guards organizer routes with JWT and the admin role. With enabled false the
// routes are open and the chain is a pass-through.
func Organizer(jwtService *auth.JWTService, enabled bool) []gin.HandlerFunc {
	if !enabled {
		return []gin.HandlerFunc{func(c *gin.Context) { c.Next() }}
	}
	return []gin.HandlerFunc{JWT(jwtService), RequireRole(auth.RoleAdmin)}
}
