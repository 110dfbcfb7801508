// Package processing rewrites destination resources before they reach the
// browser.
//
// The proxy only needs pages to load its client runtime; everything else the
// client runtime rewrites on the fly. Injector does exactly that and leaves
// other resources untouched. A full rewriting engine plugs in through the
// Processor interface.
package processing

import (
	"bytes"
	"html"
	"io"
	"strings"

	"github.com/GriffinCanCode/sessionproxy/internal/domain/pipeline"
	xhtml "golang.org/x/net/html"
)

// Processor rewrites the decoded text of a destination resource
type Processor interface {
	Process(ctx *pipeline.Context, body string) (string, error)
}

// ProcessorFunc adapts a function to Processor
type ProcessorFunc func(ctx *pipeline.Context, body string) (string, error)

// Process calls f
func (f ProcessorFunc) Process(ctx *pipeline.Context, body string) (string, error) {
	return f(ctx, body)
}

// Passthrough returns every resource unchanged
var Passthrough Processor = ProcessorFunc(func(_ *pipeline.Context, body string) (string, error) {
	return body, nil
})

// Kind names the resource class a context carries, for metrics and logs
func Kind(ctx *pipeline.Context) string {
	info := ctx.ContentInfo
	switch {
	case info == nil:
		return "unknown"
	case info.IsIframeWithImageSrc:
		return "iframe-image"
	case info.IsCSS:
		return "stylesheet"
	case info.IsScript:
		return "script"
	case info.IsManifest:
		return "manifest"
	case info.IsJSON:
		return "json"
	case ctx.IsPage || ctx.IsIframe:
		return "page"
	default:
		return "other"
	}
}

// Injector inserts the session's injectable styles and scripts into pages
type Injector struct{}

// NewInjector creates an Injector
func NewInjector() *Injector { return &Injector{} }

// Process injects into pages and returns other resources unchanged
func (i *Injector) Process(ctx *pipeline.Context, body string) (string, error) {
	if Kind(ctx) != "page" {
		return body, nil
	}

	tags := injectionMarkup(ctx.InjectableStyles(), ctx.InjectableScripts())
	if tags == "" {
		return body, nil
	}

	at := insertionPoint(body)
	return body[:at] + tags + body[at:], nil
}

func injectionMarkup(styles, scripts []string) string {
	var b strings.Builder
	for _, href := range styles {
		b.WriteString(`<link rel="stylesheet" type="text/css" class="proxy-stylesheet" href="`)
		b.WriteString(html.EscapeString(href))
		b.WriteString(`">`)
	}
	for _, src := range scripts {
		b.WriteString(`<script type="text/javascript" class="proxy-script" charset="UTF-8" src="`)
		b.WriteString(html.EscapeString(src))
		b.WriteString(`"></script>`)
	}
	return b.String()
}

// insertionPoint returns the offset just after the opening <head> tag. When
// the page has no head, tags go before the first element that belongs to the
// body, after any doctype, comments and <html> tag.
func insertionPoint(body string) int {
	z := xhtml.NewTokenizer(strings.NewReader(body))
	offset := 0

	for {
		tt := z.Next()
		if tt == xhtml.ErrorToken {
			if z.Err() == io.EOF {
				return offset
			}
			return 0
		}

		raw := len(z.Raw())
		switch tt {
		case xhtml.DoctypeToken, xhtml.CommentToken:
		case xhtml.TextToken:
			if len(bytes.TrimSpace(z.Raw())) != 0 {
				return offset
			}
		case xhtml.StartTagToken, xhtml.SelfClosingTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "html":
			case "head":
				return offset + raw
			default:
				return offset
			}
		default:
			return offset
		}
		offset += raw
	}
}
