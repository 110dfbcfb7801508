package http

import (
	"bytes"
	"context"
	"errors"
	"html"
	"io"
	"net/http"
	"strconv"

	"github.com/GriffinCanCode/sessionproxy/internal/domain/pipeline"
	"github.com/GriffinCanCode/sessionproxy/internal/domain/session"
	"github.com/GriffinCanCode/sessionproxy/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/sessionproxy/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/sessionproxy/internal/providers/destination"
	"github.com/GriffinCanCode/sessionproxy/internal/providers/processing"
	"github.com/GriffinCanCode/sessionproxy/internal/shared/charset"
	"github.com/GriffinCanCode/sessionproxy/internal/shared/encoding"
	"github.com/GriffinCanCode/sessionproxy/internal/shared/types"
	"github.com/GriffinCanCode/sessionproxy/internal/shared/urlcodec"
	"go.uber.org/zap"
)

// sniffLen is how much of a body is read to sniff its content type
const sniffLen = 512

// Proxy forwards a request that no proxy-internal route handled
func (h *Handlers) Proxy(w http.ResponseWriter, r *http.Request, info types.ServerInfo) {
	ctx := pipeline.New(w, r, info, h.codec)
	if !ctx.Dispatch(h.sessions) {
		h.metrics.RecordDispatch(monitoring.DispatchRejected)
		http.NotFound(w, r)
		return
	}
	h.metrics.RecordDispatch(monitoring.DispatchProxied)

	span := tracing.SpanFromContext(r.Context())
	span.SetTag("session.id", ctx.Session.ID())
	span.SetTag("destination", ctx.Dest.URL)

	logger := h.logger.With(
		zap.String("session_id", ctx.Session.ID()),
		zap.String("url", ctx.Dest.URL),
	)

	if r.Body != nil {
		body, err := destination.ReadBody(r.Body, 0)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		ctx.ReqBody = body
	}

	resp, err := h.fetch(ctx, logger)
	if err != nil {
		h.destinationError(ctx, err, logger)
		return
	}
	defer resp.Body.Close()

	ctx.DestRes = resp
	h.respond(ctx, logger)
}

// fetch sends the request to its destination. A 401 answer is retried once
// with the session's credentials when it has any.
func (h *Handlers) fetch(ctx *pipeline.Context, logger *zap.Logger) (*http.Response, error) {
	req := destination.Request{
		Method: ctx.Req.Method,
		URL:    ctx.Dest.URL,
		Header: destinationHeaders(ctx),
		Body:   ctx.ReqBody,
	}

	resp, err := h.fetcher.Fetch(ctx.Req.Context(), req)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	creds, err := ctx.Session.Capabilities().AuthCredentials()
	if err != nil {
		if !errors.Is(err, session.ErrNotImplemented) {
			logger.Warn("auth credentials unavailable", zap.Error(err))
		}
		return resp, nil
	}
	if creds.Username == "" {
		return resp, nil
	}

	_ = resp.Body.Close()
	req.Username, req.Password = creds.Username, creds.Password
	return h.fetcher.Fetch(ctx.Req.Context(), req)
}

// destinationError reports a failed destination request. Top-level pages go
// to the session's page error handler, everything else gets a bare 502.
func (h *Handlers) destinationError(ctx *pipeline.Context, err error, logger *zap.Logger) {
	ctx.HasDestReqErr = true

	if errors.Is(err, context.Canceled) {
		logger.Debug("browser went away", zap.Error(err))
		return
	}
	logger.Info("destination request failed", zap.Error(err))

	if ctx.IsPage && !ctx.IsIframe {
		perr := ctx.Session.Capabilities().HandlePageError(ctx, err.Error())
		if perr == nil {
			return
		}
		h.capabilityFailed("HandlePageError", perr, logger)
	}
	ctx.CloseWithError(http.StatusBadGateway, "")
}

// capabilityFailed reports a session hook that failed. A hook the
// deployment never implemented is an integration bug and logged as an error.
func (h *Handlers) capabilityFailed(capability string, err error, logger *zap.Logger) {
	reason := monitoring.CapabilityError
	if errors.Is(err, session.ErrNotImplemented) {
		reason = monitoring.CapabilityNotImplemented
	}
	h.metrics.RecordCapabilityFailure(capability, reason)
	logger.Error("session capability failed",
		zap.String("capability", capability),
		zap.String("reason", reason),
		zap.Error(err),
	)
}

func (h *Handlers) respond(ctx *pipeline.Context, logger *zap.Logger) {
	resp := ctx.DestRes
	withBody := hasBody(ctx.Req.Method, resp.StatusCode)

	var prefix []byte
	if withBody && ctx.IsIframe && resp.Header.Get("Content-Type") == "" {
		var err error
		if prefix, err = readPrefix(resp.Body, sniffLen); err != nil {
			ctx.CloseWithError(http.StatusBadGateway, "")
			return
		}
		ctx.DestResBody = prefix
	}

	if destURL, err := parseURL(ctx.Dest.URL); err == nil {
		ctx.Session.Cookies().SetByServer(destURL, resp.Header)
	}

	if err := ctx.BuildContentInfo(); err != nil {
		h.capabilityFailed("HandleFileDownload", err, logger)
		ctx.CloseWithError(http.StatusInternalServerError, "")
		return
	}

	info := ctx.ContentInfo
	switch {
	case info.IsIframeWithImageSrc:
		h.respondIframeImage(ctx)
	case info.RequireProcessing && withBody && !isRedirect(resp.StatusCode):
		h.respondProcessed(ctx, prefix, logger)
	default:
		h.respondStream(ctx, prefix, resp.Body)
	}
}

func (h *Handlers) writeHeaders(ctx *pipeline.Context) {
	header := ctx.Res.Header()
	copyResponseHeaders(header, ctx.DestRes.Header)
	if loc := ctx.DestRes.Header.Get("Location"); loc != "" {
		header.Set("Location", h.proxyLocation(ctx, loc))
	}
}

// proxyLocation turns a redirect target into a proxy URL of the session
func (h *Handlers) proxyLocation(ctx *pipeline.Context, location string) string {
	base, err := parseURL(ctx.Dest.URL)
	if err != nil {
		return location
	}
	ref, err := parseURL(location)
	if err != nil {
		return location
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return location
	}

	var resourceType urlcodec.ResourceType
	if ctx.IsIframe {
		resourceType = urlcodec.ResourceIframe
	}
	return ctx.ToProxyURL(abs.String(), false, resourceType, "")
}

func (h *Handlers) respondStream(ctx *pipeline.Context, prefix []byte, rest io.Reader) {
	h.writeHeaders(ctx)
	ctx.Res.WriteHeader(ctx.DestRes.StatusCode)
	if len(prefix) > 0 {
		_, _ = ctx.Res.Write(prefix)
	}
	if rest != nil {
		_, _ = io.Copy(ctx.Res, rest)
	}
}

// respondIframeImage answers an iframe pointed at an image with a page that
// shows it, so the client runtime still runs inside the iframe
func (h *Handlers) respondIframeImage(ctx *pipeline.Context) {
	src := ctx.ToProxyURL(ctx.Dest.URL, false, "", "")
	page := `<html><body><img src="` + html.EscapeString(src) + `"></body></html>`

	header := ctx.Res.Header()
	header.Set("Content-Type", "text/html; charset=utf-8")
	setNoCache(ctx.Res)
	ctx.Res.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(ctx.Res, page)
	h.metrics.RecordProcessed(processing.Kind(ctx))
}

// respondProcessed decodes, rewrites and re-encodes a resource. Bodies that
// are too large or cannot be decoded are passed through untouched.
func (h *Handlers) respondProcessed(ctx *pipeline.Context, prefix []byte, logger *zap.Logger) {
	resp := ctx.DestRes

	rest, err := destination.ReadBody(resp.Body, h.maxBodySize-int64(len(prefix)))
	raw := append(prefix, rest...)
	switch {
	case errors.Is(err, destination.ErrBodyTooLarge):
		logger.Debug("body too large to process, streaming")
		h.respondStream(ctx, raw, resp.Body)
		return
	case err != nil:
		logger.Info("reading destination body failed", zap.Error(err))
		ctx.CloseWithError(http.StatusBadGateway, "")
		return
	}
	ctx.DestResBody = raw

	out, err := h.process(ctx, raw)
	if err != nil {
		logger.Debug("resource passed through unprocessed", zap.Error(err))
		h.respondStream(ctx, raw, nil)
		return
	}

	h.writeHeaders(ctx)
	ctx.Res.Header().Del("Content-Length")
	ctx.Res.Header().Set("Content-Length", strconv.Itoa(len(out)))
	ctx.Res.WriteHeader(resp.StatusCode)
	_, _ = ctx.Res.Write(out)
	h.metrics.RecordProcessed(processing.Kind(ctx))
}

// process runs the content-coded body through charset decoding, the
// processor and back
func (h *Handlers) process(ctx *pipeline.Context, raw []byte) ([]byte, error) {
	info := ctx.ContentInfo
	if !encoding.IsSupported(info.Encoding) {
		return nil, encoding.ErrUnsupported
	}

	decoded, err := encoding.Decode(info.Encoding, raw)
	if err != nil {
		return nil, err
	}

	cs := info.Charset
	if cs == nil {
		cs = charset.New()
	}
	cs.FromBOM(decoded)
	if ctx.IsPage || ctx.IsIframe {
		cs.FromMeta(charset.MetaCharset(decoded))
		cs.Detect(decoded)
	}

	text, err := cs.Decode(decoded)
	if err != nil {
		return nil, err
	}

	processed, err := h.processor.Process(ctx, text)
	if err != nil {
		return nil, err
	}

	encoded, err := cs.Encode(processed)
	if err != nil {
		return nil, err
	}
	return encoding.Encode(info.Encoding, encoded)
}

func hasBody(method string, status int) bool {
	if method == http.MethodHead {
		return false
	}
	return status >= http.StatusOK && status != http.StatusNoContent && status != http.StatusNotModified
}

func isRedirect(status int) bool {
	return status >= http.StatusMultipleChoices && status < http.StatusBadRequest
}

func readPrefix(r io.Reader, n int) ([]byte, error) {
	var buf bytes.Buffer
	_, err := io.CopyN(&buf, r, int64(n))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf.Bytes(), nil
}
