package middleware

import (
	"pixelforge/internal/api/response" // Error envelope

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Structured logging
	"golang.org/x/crypto/bcrypt" // Hash comparison
)

// AdminAPIKeyHeader carries the operator key on admin requests
const AdminAPIKeyHeader = "X-API-Key"

// AdminOnlyMiddleware admits requests whose X-API-Key matches the configured
// bcrypt hash. An empty hash disables the admin API entirely.
func AdminOnlyMiddleware(keyHash string, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(AdminAPIKeyHeader) // Get API key header
		// Check that admin access is configured and a key was sent
		if keyHash == "" || key == "" {
			response.Abort(c, response.Unauthorized("Admin access required"))
			return
		}
		// Compare the key against the stored hash
		if err := bcrypt.CompareHashAndPassword([]byte(keyHash), []byte(key)); err != nil {
			log.WithFields(logrus.Fields{"ip": c.ClientIP(), "path": c.FullPath()}).Warn("invalid admin API key")
			response.Abort(c, response.Unauthorized("Invalid API key provided"))
			return
		}
		// If admin, proceed to the next handler
		c.Next()
	}
}
