// Package pipeline holds the per-request state of a proxied request.
//
// A Context is created for every request the proxy router does not serve
// itself. Dispatch recovers the destination and the session from the proxy
// URL (or from the Referer when a page requests a root-relative URL the
// client runtime did not rewrite), and BuildContentInfo classifies the
// destination response so the processing stage knows what to do with it.
package pipeline

import (
	"errors"
	"net/http"
	"strings"

	"github.com/GriffinCanCode/sessionproxy/internal/domain/session"
	"github.com/GriffinCanCode/sessionproxy/internal/shared/charset"
	"github.com/GriffinCanCode/sessionproxy/internal/shared/contenttype"
	"github.com/GriffinCanCode/sessionproxy/internal/shared/types"
	"github.com/GriffinCanCode/sessionproxy/internal/shared/urlcodec"
	"github.com/gabriel-vasile/mimetype"
)

// XHRRequestMarker is set by the client runtime on XMLHttpRequest and fetch
const XHRRequestMarker = "X-Proxy-Xhr-Request-Marker"

// ErrNoDestinationResponse is returned when content info is requested
// before the destination answered
var ErrNoDestinationResponse = errors.New("no destination response")

// SessionLookup resolves open sessions by id
type SessionLookup interface {
	Get(id string) (*session.Session, bool)
}

// Destination is the real target of a proxied request
type Destination struct {
	URL           string
	Protocol      string
	Host          string
	Hostname      string
	Port          string
	PartAfterHost string
	ResourceType  urlcodec.ResourceType
	Charset       string
	Domain        string // protocol://host
	Referer       string // destination URL of the referring page
	ReqOrigin     string // domain of the referring page
}

// ContentInfo classifies a destination response
type ContentInfo struct {
	Charset              *charset.Charset // set only when RequireProcessing
	RequireProcessing    bool
	IsIframeWithImageSrc bool
	IsCSS                bool
	IsScript             bool
	IsManifest           bool
	IsJSON               bool
	Encoding             string
	ContentTypeURLToken  urlcodec.ResourceType
}

// Context is the state of one proxied request
type Context struct {
	Req     *http.Request
	Res     http.ResponseWriter
	ReqBody []byte

	Dest          *Destination
	DestRes       *http.Response
	DestResBody   []byte
	HasDestReqErr bool

	Session     *session.Session
	IsXHR       bool
	IsPage      bool
	IsIframe    bool
	ContentInfo *ContentInfo

	serverInfo types.ServerInfo
	codec      urlcodec.Codec
}

// New creates a context for a request. A nil codec uses urlcodec.Default.
func New(w http.ResponseWriter, r *http.Request, info types.ServerInfo, codec urlcodec.Codec) *Context {
	if codec == nil {
		codec = urlcodec.Default
	}
	c := &Context{
		Req:        r,
		Res:        w,
		serverInfo: info,
		codec:      codec,
	}
	c.initRequestNature()
	return c
}

// ServerInfo returns the listener the request arrived on
func (c *Context) ServerInfo() types.ServerInfo { return c.serverInfo }

// Request returns the incoming request
func (c *Context) Request() *http.Request { return c.Req }

// DestinationURL returns the destination URL, empty before Dispatch
func (c *Context) DestinationURL() string {
	if c.Dest == nil {
		return ""
	}
	return c.Dest.URL
}

// Dispatch resolves the destination and the session of the request.
// It returns false when the request is not a proxy request or names a
// session that is not open.
func (c *Context) Dispatch(sessions SessionLookup) bool {
	parsed, ok := c.codec.Decode(c.Req.RequestURI)

	var referer urlcodec.Fields
	var hasReferer bool
	if raw := c.Req.Header.Get("Referer"); raw != "" {
		referer, hasReferer = c.codec.Decode(raw)
	}

	if !ok {
		if !hasReferer {
			return false
		}
		parsed = c.destFromReferer(referer)
	}

	s, found := sessions.Get(parsed.SessionID)
	if !found {
		return false
	}
	c.Session = s

	c.Dest = &Destination{
		URL:           parsed.DestURL,
		Protocol:      parsed.DestProtocol,
		Host:          parsed.DestHost,
		Hostname:      parsed.DestHostname,
		Port:          parsed.DestPort,
		PartAfterHost: parsed.PartAfterHost,
		ResourceType:  parsed.ResourceType,
		Charset:       parsed.Charset,
		Domain:        urlcodec.Domain(parsed.DestProtocol, parsed.DestHost),
	}
	if hasReferer {
		c.Dest.Referer = referer.DestURL
		c.Dest.ReqOrigin = urlcodec.Domain(referer.DestProtocol, referer.DestHost)
	}

	c.initRequestNature()
	c.IsIframe = c.Dest.ResourceType == urlcodec.ResourceIframe
	return true
}

// destFromReferer builds the destination of a root-relative request from the
// page that issued it. Browsers may send the default port in the Referer,
// which some servers reject in Host, so it is dropped.
func (c *Context) destFromReferer(referer urlcodec.Fields) urlcodec.Fields {
	host, port := referer.DestHost, referer.DestPort
	if urlcodec.IsDefaultPort(referer.DestProtocol, port) {
		host, port = referer.DestHostname, ""
	}

	return urlcodec.Fields{
		DestURL:       urlcodec.FormatURL(referer.DestProtocol, host, c.Req.RequestURI),
		DestProtocol:  referer.DestProtocol,
		DestHost:      host,
		DestHostname:  referer.DestHostname,
		DestPort:      port,
		PartAfterHost: c.Req.RequestURI,
		SessionID:     referer.SessionID,
	}
}

func (c *Context) initRequestNature() {
	c.IsXHR = c.Req.Header.Get(XHRRequestMarker) != ""
	c.IsPage = !c.IsXHR && contenttype.IsPage(c.Req.Header.Get("Accept"))
}

// BuildContentInfo classifies the destination response. It runs once per
// request; later calls keep the first result. A file download is reported to
// the session's capabilities and their error is returned.
func (c *Context) BuildContentInfo() error {
	if c.ContentInfo != nil {
		return nil
	}
	if c.DestRes == nil || c.Dest == nil {
		return ErrNoDestinationResponse
	}

	contentType := c.DestRes.Header.Get("Content-Type")
	accept := c.Req.Header.Get("Accept")

	info := &ContentInfo{
		IsCSS:      contenttype.IsCSSResource(contentType, accept),
		IsManifest: contenttype.IsManifest(contentType),
		IsJSON:     contenttype.IsJSON(contentType),
		IsScript: c.Dest.ResourceType == urlcodec.ResourceScript ||
			contenttype.IsScriptResource(contentType, accept),
		Encoding: c.DestRes.Header.Get("Content-Encoding"),
	}

	info.RequireProcessing = !c.IsXHR &&
		(c.IsPage || c.IsIframe || info.IsCSS || info.IsScript || info.IsManifest || info.IsJSON)

	info.IsIframeWithImageSrc = c.IsIframe && !c.IsPage && c.isImage(contentType)

	switch {
	case info.IsScript:
		info.ContentTypeURLToken = urlcodec.ResourceScript
	case c.IsIframe:
		info.ContentTypeURLToken = urlcodec.ResourceIframe
	}

	if info.RequireProcessing {
		cs := charset.New()
		if !cs.FromContentType(contenttype.CharsetParam(contentType)) {
			cs.FromURL(c.Dest.Charset)
		}
		info.Charset = cs
	}

	c.ContentInfo = info

	if c.isFileDownload() && c.Session != nil {
		return c.Session.Capabilities().HandleFileDownload(c)
	}
	return nil
}

func (c *Context) isImage(contentType string) bool {
	if strings.TrimSpace(contentType) != "" {
		return contenttype.IsImage(contentType)
	}
	if len(c.DestResBody) == 0 {
		return false
	}
	return strings.HasPrefix(mimetype.Detect(c.DestResBody).String(), "image/")
}

func (c *Context) isFileDownload() bool {
	disposition := c.DestRes.Header.Get("Content-Disposition")
	return strings.Contains(disposition, "attachment") && strings.Contains(disposition, "filename")
}

// InjectableScripts returns the absolute URLs of the scripts to inject into
// the proxied page, ending with the page or iframe task script
func (c *Context) InjectableScripts() []string {
	if c.Session == nil {
		return nil
	}
	task := session.TaskScriptPath
	if c.IsIframe {
		task = session.IframeTaskScriptPath
	}
	scripts := append(c.Session.Injectable().Scripts, task)
	return c.absolute(scripts)
}

// InjectableStyles returns the absolute URLs of the styles to inject
func (c *Context) InjectableStyles() []string {
	if c.Session == nil {
		return nil
	}
	return c.absolute(c.Session.Injectable().Styles)
}

func (c *Context) absolute(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = c.serverInfo.Domain + p
	}
	return out
}

// Redirect answers with a 302 to location
func (c *Context) Redirect(location string) {
	c.Res.Header().Set("Location", location)
	c.Res.WriteHeader(http.StatusFound)
}

// CloseWithError answers with status and an optional HTML body
func (c *Context) CloseWithError(status int, body string) {
	if body != "" {
		c.Res.Header().Set("Content-Type", "text/html")
	}
	c.Res.WriteHeader(status)
	if body != "" {
		_, _ = c.Res.Write([]byte(body))
	}
}

// ToProxyURL converts a destination URL into a proxy URL of this session.
// Cross-domain URLs go through the cross-domain port.
func (c *Context) ToProxyURL(destURL string, crossDomain bool, resourceType urlcodec.ResourceType, charsetToken string) string {
	port := c.serverInfo.Port
	if crossDomain {
		port = c.serverInfo.CrossDomainPort
	}

	sessionID := ""
	if c.Session != nil {
		sessionID = c.Session.ID()
	}
	return c.codec.Encode(destURL, c.serverInfo.Hostname, port, sessionID, resourceType, charsetToken)
}
