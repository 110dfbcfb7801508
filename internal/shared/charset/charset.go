// Package charset resolves the character encoding of proxied resources.
//
// Sources are ranked: a byte order mark beats the Content-Type header, which
// beats the charset token carried in the proxy URL, which beats the
// <meta> declaration and content sniffing, which beat the default. A lower
// ranked source never overrides a higher ranked one.
package charset

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/saintfish/chardet"
	"golang.org/x/net/html"
	htmlcharset "golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

// Priority ranks where a charset came from
type Priority int

const (
	PriorityDefault Priority = iota
	PriorityDetect
	PriorityMeta
	PriorityURL
	PriorityContentType
	PriorityBOM
)

// DefaultLabel is used when no source names a charset
const DefaultLabel = "windows-1252"

var boms = []struct {
	mark  []byte
	label string
}{
	{[]byte{0xEF, 0xBB, 0xBF}, "utf-8"},
	{[]byte{0xFE, 0xFF}, "utf-16be"},
	{[]byte{0xFF, 0xFE}, "utf-16le"},
}

// Charset is the resolved encoding of a resource
type Charset struct {
	name     string
	encoding encoding.Encoding
	priority Priority
}

// New returns a charset resolved to the default encoding
func New() *Charset {
	enc, name := htmlcharset.Lookup(DefaultLabel)
	return &Charset{name: name, encoding: enc, priority: PriorityDefault}
}

// Name returns the canonical charset name, e.g. "utf-8" or "windows-1252"
func (c *Charset) Name() string { return c.name }

// Priority returns the rank of the source that set the charset
func (c *Charset) Priority() Priority { return c.priority }

// Encoding returns the x/text encoding for the charset
func (c *Charset) Encoding() encoding.Encoding { return c.encoding }

// IsFromBOM reports whether the charset was taken from a byte order mark
func (c *Charset) IsFromBOM() bool { return c.priority == PriorityBOM }

func (c *Charset) set(label string, priority Priority) bool {
	if priority < c.priority {
		return false
	}
	enc, name := htmlcharset.Lookup(strings.TrimSpace(label))
	if enc == nil {
		return false
	}
	c.name = name
	c.encoding = enc
	c.priority = priority
	return true
}

// FromContentType sets the charset from a Content-Type charset parameter
func (c *Charset) FromContentType(label string) bool {
	return label != "" && c.set(label, PriorityContentType)
}

// FromURL sets the charset from the charset token carried in a proxy URL
func (c *Charset) FromURL(token string) bool {
	return token != "" && c.set(token, PriorityURL)
}

// FromMeta sets the charset from an HTML <meta> declaration
func (c *Charset) FromMeta(label string) bool {
	return label != "" && c.set(label, PriorityMeta)
}

// metaScanLimit bounds how much of a document is searched for <meta>
const metaScanLimit = 1024

// MetaCharset returns the charset declared by a <meta charset> or
// <meta http-equiv="Content-Type"> tag in the first bytes of an HTML
// document, or "" when there is none.
func MetaCharset(body []byte) string {
	if len(body) > metaScanLimit {
		body = body[:metaScanLimit]
	}
	z := html.NewTokenizer(bytes.NewReader(body))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			switch string(name) {
			case "body":
				return ""
			case "meta":
				if !hasAttr {
					continue
				}
				if label := metaTagCharset(z); label != "" {
					return label
				}
			}
		}
	}
}

func metaTagCharset(z *html.Tokenizer) string {
	var httpEquiv, content string
	for {
		key, val, more := z.TagAttr()
		switch strings.ToLower(string(key)) {
		case "charset":
			return strings.TrimSpace(string(val))
		case "http-equiv":
			httpEquiv = strings.ToLower(string(val))
		case "content":
			content = string(val)
		}
		if !more {
			break
		}
	}
	if httpEquiv != "content-type" {
		return ""
	}
	lower := strings.ToLower(content)
	i := strings.Index(lower, "charset=")
	if i < 0 {
		return ""
	}
	label := strings.Trim(content[i+len("charset="):], ` "';`)
	if j := strings.IndexAny(label, " ;"); j >= 0 {
		label = label[:j]
	}
	return label
}

// FromBOM sets the charset from a byte order mark at the start of body
func (c *Charset) FromBOM(body []byte) bool {
	for _, b := range boms {
		if bytes.HasPrefix(body, b.mark) {
			return c.set(b.label, PriorityBOM)
		}
	}
	return false
}

// Detect guesses the charset from content when nothing better is known
func (c *Charset) Detect(body []byte) bool {
	if len(body) == 0 || c.priority > PriorityDetect {
		return false
	}
	result, err := chardet.NewTextDetector().DetectBest(body)
	if err != nil || result == nil {
		return false
	}
	return c.set(strings.ToLower(result.Charset), PriorityDetect)
}

// Decode converts body to UTF-8, dropping a byte order mark
func (c *Charset) Decode(body []byte) (string, error) {
	for _, b := range boms {
		if bytes.HasPrefix(body, b.mark) {
			body = body[len(b.mark):]
			break
		}
	}
	if c.encoding == unicode.UTF8 {
		return string(body), nil
	}
	out, err := c.encoding.NewDecoder().Bytes(body)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", c.name, err)
	}
	return string(out), nil
}

// Encode converts UTF-8 text back to the charset. A BOM is restored when
// the charset came from one.
func (c *Charset) Encode(text string) ([]byte, error) {
	var out []byte
	if c.encoding == unicode.UTF8 {
		out = []byte(text)
	} else {
		encoded, err := c.encoding.NewEncoder().Bytes([]byte(text))
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", c.name, err)
		}
		out = encoded
	}

	if c.IsFromBOM() {
		for _, b := range boms {
			if b.label == c.name {
				return append(append([]byte{}, b.mark...), out...), nil
			}
		}
	}
	return out, nil
}
