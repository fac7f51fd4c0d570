package middleware

import (
	"pixelforge/internal/api/response"
	"pixelforge/internal/domain"
	"pixelforge/internal/users"

	"github.com/gin-gonic/gin"
)

// EnsureUser provisions the local row of the authenticated caller on first
// sight, so every handler behind it can rely on the user existing. It must run
// after JWTAuthMiddleware.
func EnsureUser(svc *users.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := IdentityOf(c)
		if identity.ID == "" {
			response.Abort(c, response.Unauthorized("User not authenticated"))
			return
		}
		user, err := svc.Ensure(c.Request.Context(), identity)
		if err != nil {
			response.Abort(c, err)
			return
		}
		c.Set(ContextUser, user)
		c.Next()
	}
}

// CurrentUser returns the row loaded by EnsureUser.
func CurrentUser(c *gin.Context) *domain.User {
	v, _ := c.Get(ContextUser)
	user, _ := v.(*domain.User)
	return user
}
