package middleware

import (
	"strconv"
	"time"

	"pixelforge/internal/metrics"

	"github.com/gin-gonic/gin"
)

// ResponseTimeHeader reports the server time spent on a request.
const ResponseTimeHeader = "X-Response-Time"

// timedWriter stamps ResponseTimeHeader just before the headers go out.
type timedWriter struct {
	gin.ResponseWriter
	start time.Time
}

func (w *timedWriter) stamp() {
	if !w.Written() {
		w.Header().Set(ResponseTimeHeader, strconv.FormatInt(time.Since(w.start).Milliseconds(), 10)+"ms")
	}
}

func (w *timedWriter) WriteHeaderNow() {
	w.stamp()
	w.ResponseWriter.WriteHeaderNow()
}

func (w *timedWriter) Write(b []byte) (int, error) {
	w.stamp()
	return w.ResponseWriter.Write(b)
}

func (w *timedWriter) WriteString(s string) (int, error) {
	w.stamp()
	return w.ResponseWriter.WriteString(s)
}

// ResponseTime sets X-Response-Time on every response. It should run first so
// the figure covers the whole chain.
func ResponseTime() gin.HandlerFunc {
	return func(c *gin.Context) {
		w := &timedWriter{ResponseWriter: c.Writer, start: time.Now()}
		c.Writer = w
		c.Next()
		w.stamp() // handlers that only set a status never wrote through w
	}
}

// Metrics records every request on m, labelled by route template rather than
// raw path to keep label cardinality bounded.
func Metrics(m *metrics.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		done := m.RequestStarted()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		done(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
