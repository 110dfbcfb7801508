package tracing

import (
	"github.com/gin-gonic/gin"
)

// HTTPMiddleware opens a span per request. Trace headers sent by the
// browser are consumed here and never reach a destination.
func HTTPMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := c.Request
		ctx := ContinueTrace(req.Context(), req.Header.Get(TraceHeader), req.Header.Get(SpanHeader))
		req.Header.Del(TraceHeader)
		req.Header.Del(SpanHeader)

		name := c.FullPath()
		if name == "" {
			name = "proxy"
		}
		span, ctx := tracer.Start(ctx, req.Method+" "+name)
		span.SetTag("http.uri", req.RequestURI)
		span.SetTag("http.host", req.Host)
		c.Request = req.WithContext(ctx)

		c.Header(TraceHeader, span.TraceID)
		c.Header(SpanHeader, span.SpanID)

		c.Next()

		var err error
		if last := c.Errors.Last(); last != nil {
			err = last.Err
		}
		span.End(c.Writer.Status(), err)
	}
}
