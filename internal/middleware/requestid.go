package middleware

import (
	"pixelforge/internal/api/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ContextRequestID holds the id assigned to the current request.
const ContextRequestID = "requestID"

// RequestID tags every request with an id, reusing a well-formed incoming
// X-Request-ID so ids survive a proxy hop.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(response.RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(ContextRequestID, id)
		c.Header(response.RequestIDHeader, id)
		c.Next()
	}
}
