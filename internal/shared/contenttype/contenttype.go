// Package contenttype classifies resources by MIME type and Accept header.
package contenttype

import (
	"mime"
	"strings"
)

const (
	TextHTML      = "text/html"
	XHTML         = "application/xhtml+xml"
	TextCSS       = "text/css"
	CacheManifest = "text/cache-manifest"
	JSON          = "application/json"
	JavaScript    = "application/javascript"
)

var scriptMIMETypes = map[string]bool{
	"application/ecmascript":   true,
	"application/javascript":   true,
	"application/x-ecmascript": true,
	"application/x-javascript": true,
	"text/ecmascript":          true,
	"text/javascript":          true,
	"text/javascript1.0":       true,
	"text/javascript1.1":       true,
	"text/javascript1.2":       true,
	"text/javascript1.3":       true,
	"text/javascript1.4":       true,
	"text/javascript1.5":       true,
	"text/jscript":             true,
	"text/livescript":          true,
	"text/x-ecmascript":        true,
	"text/x-javascript":        true,
	"module":                   true,
}

// MediaType returns the lower-cased media type without parameters.
// Unparseable headers fall back to the text before the first ';'.
func MediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt, _, _ = strings.Cut(contentType, ";")
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

// CharsetParam returns the charset parameter of a Content-Type header
func CharsetParam(contentType string) string {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(params["charset"])
}

// IsPage reports whether an Accept header asks for an HTML document
func IsPage(accept string) bool {
	accept = strings.ToLower(accept)
	return strings.Contains(accept, TextHTML) || strings.Contains(accept, XHTML)
}

// IsCSSResource reports whether the response is a stylesheet
func IsCSSResource(contentType, accept string) bool {
	return strings.Contains(strings.ToLower(contentType), TextCSS) || strings.EqualFold(accept, TextCSS)
}

// IsScriptResource reports whether the response is a script
func IsScriptResource(contentType, accept string) bool {
	return scriptMIMETypes[MediaType(contentType)] || strings.EqualFold(accept, JavaScript)
}

// IsManifest reports whether the response is an application cache manifest
func IsManifest(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), CacheManifest)
}

// IsJSON reports whether the response is JSON
func IsJSON(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), JSON)
}

// IsImage reports whether the content type is an image type
func IsImage(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/")
}

// IsScriptMIMEType reports whether a bare MIME type denotes JavaScript
func IsScriptMIMEType(mimeType string) bool {
	return scriptMIMETypes[strings.ToLower(strings.TrimSpace(mimeType))]
}
