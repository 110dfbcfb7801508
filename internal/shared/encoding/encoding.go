// Package encoding decodes and re-encodes HTTP content-coded bodies.
package encoding

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// ErrUnsupported is returned for content codings the proxy cannot process.
// Callers pass such bodies through untouched.
var ErrUnsupported = errors.New("unsupported content encoding")

const (
	Identity = "identity"
	Gzip     = "gzip"
	Deflate  = "deflate"
	Zstd     = "zstd"
	Brotli   = "br"
)

// Normalize lower-cases and trims a Content-Encoding header value
func Normalize(contentEncoding string) string {
	return strings.ToLower(strings.TrimSpace(contentEncoding))
}

// IsSupported reports whether a Content-Encoding can be decoded
func IsSupported(contentEncoding string) bool {
	switch Normalize(contentEncoding) {
	case "", Identity, Gzip, "x-gzip", Deflate, Zstd:
		return true
	}
	return false
}

// Decode returns the decompressed body
func Decode(contentEncoding string, body []byte) ([]byte, error) {
	switch Normalize(contentEncoding) {
	case "", Identity:
		return body, nil
	case Gzip, "x-gzip":
		r, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer r.Close()
		return readAll(r, "gzip")
	case Deflate:
		// Servers send either zlib-wrapped or raw deflate streams
		if len(body) > 0 && body[0]&0x0F == 0x08 {
			r, err := zlib.NewReader(bytes.NewReader(body))
			if err == nil {
				defer r.Close()
				return readAll(r, "deflate")
			}
		}
		r := flate.NewReader(bytes.NewReader(body))
		defer r.Close()
		return readAll(r, "deflate")
	case Zstd:
		r, err := zstd.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		defer r.Close()
		return readAll(r, "zstd")
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, contentEncoding)
}

// Encode compresses body with the given Content-Encoding
func Encode(contentEncoding string, body []byte) ([]byte, error) {
	var buf bytes.Buffer

	switch Normalize(contentEncoding) {
	case "", Identity:
		return body, nil
	case Gzip, "x-gzip":
		w := gzip.NewWriter(&buf)
		if err := writeAndClose(w, body); err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
	case Deflate:
		w := zlib.NewWriter(&buf)
		if err := writeAndClose(w, body); err != nil {
			return nil, fmt.Errorf("deflate: %w", err)
		}
	case Zstd:
		w, err := zstd.NewWriter(&buf)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		if err := writeAndClose(w, body); err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, contentEncoding)
	}

	return buf.Bytes(), nil
}

func readAll(r io.Reader, name string) ([]byte, error) {
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

func writeAndClose(w io.WriteCloser, body []byte) error {
	if _, err := w.Write(body); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// FilterAcceptEncoding drops the codings the proxy cannot decode from an
// Accept-Encoding header value, keeping quality parameters. It returns ""
// when nothing supported remains.
func FilterAcceptEncoding(accept string) string {
	var kept []string
	for _, part := range strings.Split(accept, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		coding := part
		if i := strings.IndexByte(part, ';'); i >= 0 {
			coding = part[:i]
		}
		coding = Normalize(coding)
		if coding == "*" || coding == "" || !IsSupported(coding) {
			continue
		}
		kept = append(kept, part)
	}
	return strings.Join(kept, ", ")
}
