// Package response writes the JSON envelope every endpoint answers with and
// maps application error kinds to HTTP status codes.
package response

import (
	"errors"
	"net/http"
	"time"

	"pixelforge/internal/apperr"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// RequestIDHeader carries the request id on requests and responses.
const RequestIDHeader = "X-Request-ID"

// ContextLogger is the gin context key of the logger Abort writes to.
const ContextLogger = "logger"

// UseLogger makes log the logger of every handler after it.
func UseLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ContextLogger, log)
		c.Next()
	}
}

// Logger returns the logger set by UseLogger, or the standard logger.
func Logger(c *gin.Context) logrus.FieldLogger {
	if v, ok := c.Get(ContextLogger); ok {
		if log, ok := v.(logrus.FieldLogger); ok {
			return log
		}
	}
	return logrus.StandardLogger()
}

// Envelope is the body of every API response.
type Envelope struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
	Message   string    `json:"message,omitempty"`
	Details   any       `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"requestId,omitempty"`
}

// InsufficientDetails is attached to InsufficientBalance responses.
type InsufficientDetails struct {
	Required string `json:"required"`
	Current  string `json:"current"`
}

// OK writes a successful envelope.
func OK(c *gin.Context, status int, data any, message string) {
	c.JSON(status, Envelope{
		Success:   true,
		Data:      data,
		Message:   message,
		Timestamp: time.Now().UTC(),
		RequestID: requestID(c),
	})
}

// Abort writes an error envelope for err and stops the handler chain.
// Unclassified errors are logged and reported as a generic internal error.
func Abort(c *gin.Context, err error) {
	env := Envelope{Timestamp: time.Now().UTC(), RequestID: requestID(c)}
	status := http.StatusInternalServerError

	var (
		appErr *apperr.Error
		verrs  validator.ValidationErrors
	)
	switch {
	case errors.As(err, &verrs):
		status = http.StatusBadRequest
		env.Error = string(apperr.KindInvalidRequest)
		env.Message = "request validation failed"
		env.Details = fieldErrors(verrs)
	case errors.As(err, &appErr):
		status = StatusFor(appErr.Kind)
		env.Error = string(appErr.Kind)
		env.Message = appErr.Message
		switch {
		case len(appErr.Fields) > 0:
			env.Details = appErr.Fields
		case appErr.Kind == apperr.KindInsufficientBalance:
			env.Details = InsufficientDetails{
				Required: appErr.Required.StringFixed(2),
				Current:  appErr.Current.StringFixed(2),
			}
		}
	default:
		env.Error = string(apperr.KindInternal)
		env.Message = "An unexpected error occurred"
	}

	if status >= http.StatusInternalServerError {
		Logger(c).WithFields(logrus.Fields{
			"request_id": env.RequestID,
			"path":       c.FullPath(),
			"kind":       env.Error,
		}).WithError(err).Error("request failed")
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, env)
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInvalidRequest, apperr.KindInsufficientBalance:
		return http.StatusBadRequest
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindRateLimited:
		return http.StatusTooManyRequests
	case apperr.KindGenerationFailed:
		return http.StatusBadGateway
	case apperr.KindStorageUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// Unauthorized builds the error used by the auth middlewares.
func Unauthorized(msg string) *apperr.Error {
	return &apperr.Error{Kind: apperr.KindUnauthorized, Message: msg}
}

// RateLimited builds the error returned once a caller exceeds its window.
func RateLimited(msg string) *apperr.Error {
	return &apperr.Error{Kind: apperr.KindRateLimited, Message: msg}
}

func fieldErrors(verrs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			out[fe.Field()] = "is required"
		case "min", "gte":
			out[fe.Field()] = "must be at least " + fe.Param()
		case "max", "lte":
			out[fe.Field()] = "must be at most " + fe.Param()
		case "gt":
			out[fe.Field()] = "must be greater than " + fe.Param()
		case "oneof":
			out[fe.Field()] = "must be one of " + fe.Param()
		default:
			out[fe.Field()] = "failed " + fe.Tag() + " validation"
		}
	}
	return out
}

func requestID(c *gin.Context) string {
	return c.Writer.Header().Get(RequestIDHeader)
}
