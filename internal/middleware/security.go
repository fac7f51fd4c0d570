package middleware

import (
	"fmt"
	"net/http"
	"time"

	"pixelforge/internal/api/response"

	"github.com/gin-gonic/gin"
)

// SecurityHeaders sets conservative headers for a JSON-only API.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none';")
		h.Set("Server", "PixelForge-API")
		c.Next()
	}
}

// BodyLimit rejects requests that declare a body larger than max and caps the
// bytes read from the rest.
func BodyLimit(max int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > max {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, response.Envelope{
				Error:     "REQUEST_TOO_LARGE",
				Message:   fmt.Sprintf("Request size exceeds maximum allowed size of %d bytes", max),
				Timestamp: time.Now().UTC(),
				RequestID: c.GetString(ContextRequestID),
			})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, max)
		c.Next()
	}
}
