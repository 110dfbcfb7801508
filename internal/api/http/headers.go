package http

import (
	"net/http"
	"net/textproto"
	"strings"

	"github.com/GriffinCanCode/sessionproxy/internal/domain/pipeline"
	"github.com/GriffinCanCode/sessionproxy/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/sessionproxy/internal/shared/encoding"
)

// hopHeaders apply to a single connection and are never forwarded
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

func removeHopHeaders(h http.Header) {
	// Headers named by Connection are hop-by-hop as well
	for _, field := range h.Values("Connection") {
		for _, name := range strings.Split(field, ",") {
			if name = textproto.TrimString(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}

// destinationHeaders derives the headers sent to the destination from the
// browser request
func destinationHeaders(ctx *pipeline.Context) http.Header {
	h := ctx.Req.Header.Clone()
	removeHopHeaders(h)

	h.Del("Host")
	h.Del(pipeline.XHRRequestMarker)
	h.Del(tracing.TraceHeader)
	h.Del(tracing.SpanHeader)

	// Browser cookies belong to the proxy origin; the session jar holds the
	// destination's
	h.Del("Cookie")
	if destURL, err := parseURL(ctx.Dest.URL); err == nil {
		if cookie := ctx.Session.Cookies().Header(destURL); cookie != "" {
			h.Set("Cookie", cookie)
		}
	}

	if ctx.Dest.Referer != "" {
		h.Set("Referer", ctx.Dest.Referer)
	} else {
		h.Del("Referer")
	}

	if h.Get("Origin") != "" {
		origin := ctx.Dest.ReqOrigin
		if origin == "" {
			origin = ctx.Dest.Domain
		}
		h.Set("Origin", origin)
	}

	if accept := h.Get("Accept-Encoding"); accept != "" {
		if filtered := encoding.FilterAcceptEncoding(accept); filtered != "" {
			h.Set("Accept-Encoding", filtered)
		} else {
			h.Del("Accept-Encoding")
		}
	}

	return h
}

// copyResponseHeaders copies destination response headers to the browser.
// Set-Cookie is kept in the session jar instead; Location is rewritten by
// the caller.
func copyResponseHeaders(dst, src http.Header) {
	for name, values := range src {
		dst[name] = append([]string(nil), values...)
	}
	removeHopHeaders(dst)
	dst.Del("Set-Cookie")
}
