package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// ProxyRoute labels requests that matched no gin route. Proxied URLs are
// unbounded, so they share one label.
const ProxyRoute = "proxy"

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = ProxyRoute
		}
		metrics.RecordHTTPRequest(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// Timer measures a destination round trip
type Timer struct {
	start   time.Time
	metrics *Metrics
}

// NewTimer starts a timer
func NewTimer(metrics *Metrics) *Timer {
	return &Timer{start: time.Now(), metrics: metrics}
}

// Stop records the round trip with its response status, or a failure
// reason when status is 0
func (t *Timer) Stop(status int, reason string) time.Duration {
	d := time.Since(t.start)
	if t.metrics != nil {
		t.metrics.RecordDestination(status, d, reason)
	}
	return d
}
