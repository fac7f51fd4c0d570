package middleware

import (
	"strings" // String manipulation

	"pixelforge/internal/api/response" // Error envelope
	"pixelforge/internal/users"        // Identity type
	"pixelforge/internal/utils"        // JWT utility functions

	"github.com/gin-gonic/gin" // Gin web framework
)

// Context keys set by the auth middlewares
const (
	ContextUserID   = "userID"
	ContextIdentity = "identity"
	ContextUser     = "user"
)

// JWTAuthMiddleware validates bearer tokens from the auth provider and stores
// the caller's identity in the context
func JWTAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization") // Get Authorization header
		// Check if the Authorization header is present and properly formatted
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			response.Abort(c, response.Unauthorized("Missing or invalid Authorization header"))
			return
		}
		tokenStr := strings.TrimPrefix(authHeader, "Bearer ") // Extract the token string
		claims, err := utils.ParseJWT(tokenStr, secret)       // Parse the JWT token
		if err != nil {
			response.Abort(c, response.Unauthorized("Invalid or expired token"))
			return
		}
		c.Set(ContextUserID, claims.UserID) // Store userID in context
		c.Set(ContextIdentity, users.Identity{
			ID:      claims.UserID,
			Email:   claims.Email,
			Name:    claims.Name,
			Picture: claims.Picture,
		})
		c.Next() // Proceed to the next handler
	}
}

// UserID returns the authenticated user id, or "" on public routes
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}

// IdentityOf returns the identity stored by JWTAuthMiddleware
func IdentityOf(c *gin.Context) users.Identity {
	id, _ := c.Get(ContextIdentity)
	identity, _ := id.(users.Identity)
	return identity
}
