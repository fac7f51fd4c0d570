package middleware

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"pixelforge/internal/api/response"
	"pixelforge/internal/ratelimit"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RateLimit throttles callers by client IP, narrowed to the user when an
// earlier middleware authenticated one. A failing store lets requests
// through.
func RateLimit(l *ratelimit.Limiter, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if uid := UserID(c); uid != "" {
			key += ":" + uid
		}

		res, err := l.Allow(c.Request.Context(), key)
		if err != nil {
			log.WithError(err).WithField("key", key).Warn("rate limiter unavailable, admitting request")
			c.Next()
			return
		}

		h := c.Writer.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(res.Reset.Unix(), 10))

		if !res.Allowed {
			retry := res.RetryAfter(time.Now())
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
			response.Abort(c, response.RateLimited(
				fmt.Sprintf("Rate limit exceeded. Max %d requests per %s", l.Limit(), l.Window())))
			return
		}
		c.Next()
	}
}
