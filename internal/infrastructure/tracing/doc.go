/*
Package tracing ties the log lines of one proxied request together.

Every inbound request gets a span. When the browser sends X-Trace-ID (and
optionally X-Span-ID) the span continues that trace; otherwise a new trace
id is minted. Both headers are removed before the request is forwarded and
the ids are echoed back on the response.

	tracer := tracing.New("proxy", logger)
	defer tracer.Close()
	engine.Use(tracing.HTTPMiddleware(tracer))

	span := tracing.SpanFromContext(c.Request.Context())
	span.SetTag("session.id", sessionID)

Finished spans are logged by a background goroutine: failed spans at warn
level, the rest only when debug logging is on.
*/
package tracing
