// Package urlcodec converts destination URLs to proxy URLs and back.
//
// A proxy URL carries the destination plus routing metadata:
//
//	http://{proxyHost}:{proxyPort}/{sessionId}[!{resourceType}[!{charset}]]/{destUrl}
//
// e.g. http://localhost:1337/a1b2c3!s!utf-8/https://example.com/app.js
//
// The grammar is owned by this package. Everything else in the proxy only
// depends on the decoded Fields and on the Codec round-trip guarantee.
package urlcodec

import (
	"net"
	"net/url"
	"strconv"
	"strings"
)

// ResourceType classifies what a destination URL points to
type ResourceType string

const (
	ResourceNone   ResourceType = ""
	ResourceIframe ResourceType = "i"
	ResourceScript ResourceType = "s"
)

const flagSeparator = "!"

// Fields is the decoded content of a proxy URL
type Fields struct {
	DestURL       string
	DestProtocol  string // "http" or "https"
	DestHost      string // hostname[:port]
	DestHostname  string
	DestPort      string
	PartAfterHost string // path, query and fragment
	ResourceType  ResourceType
	Charset       string
	SessionID     string
}

// Codec encodes and decodes proxy URLs.
// Implementations must satisfy Decode(Encode(x)) == x for valid inputs.
type Codec interface {
	Decode(rawURL string) (Fields, bool)
	Encode(destURL, proxyHostname string, proxyPort int, sessionID string, resourceType ResourceType, charset string) string
}

// Default is the codec used by the proxy
var Default Codec = PathCodec{}

// PathCodec implements the path-prefixed proxy URL grammar
type PathCodec struct{}

// Encode builds a proxy URL. Destination URLs without a scheme are returned
// unchanged, since they cannot be proxied.
func (PathCodec) Encode(destURL, proxyHostname string, proxyPort int, sessionID string, resourceType ResourceType, charset string) string {
	if !isSupportedURL(destURL) {
		return destURL
	}

	params := sessionID
	if resourceType != ResourceNone || charset != "" {
		params += flagSeparator + string(resourceType)
	}
	if charset != "" {
		params += flagSeparator + charset
	}

	host := net.JoinHostPort(proxyHostname, strconv.Itoa(proxyPort))
	return "http://" + host + "/" + params + "/" + destURL
}

// Decode parses either an absolute proxy URL or a request URI
// ("/{params}/{destUrl}") into Fields.
func (PathCodec) Decode(rawURL string) (Fields, bool) {
	path := rawURL
	if strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://") {
		u, err := url.Parse(rawURL)
		if err != nil {
			return Fields{}, false
		}
		path = strings.TrimPrefix(rawURL, u.Scheme+"://"+u.Host)
	}

	if !strings.HasPrefix(path, "/") {
		return Fields{}, false
	}

	params, destURL, ok := strings.Cut(path[1:], "/")
	if !ok || params == "" {
		return Fields{}, false
	}

	sessionID, resourceType, charset, ok := parseParams(params)
	if !ok {
		return Fields{}, false
	}

	dest, ok := ParseDestination(destURL)
	if !ok {
		return Fields{}, false
	}

	dest.ResourceType = resourceType
	dest.Charset = charset
	dest.SessionID = sessionID
	return dest, true
}

// ParseDestination splits an absolute http(s) URL into destination fields
func ParseDestination(destURL string) (Fields, bool) {
	if !isSupportedURL(destURL) {
		return Fields{}, false
	}

	u, err := url.Parse(destURL)
	if err != nil || u.Host == "" {
		return Fields{}, false
	}

	rest := destURL[strings.Index(destURL, "://")+len("://"):]
	partAfterHost := "/"
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		partAfterHost = rest[i:]
	}

	return Fields{
		DestURL:       destURL,
		DestProtocol:  u.Scheme,
		DestHost:      u.Host,
		DestHostname:  u.Hostname(),
		DestPort:      u.Port(),
		PartAfterHost: partAfterHost,
	}, true
}

// FormatURL composes a URL from protocol, host and the part after host
func FormatURL(protocol, host, partAfterHost string) string {
	if partAfterHost == "" {
		partAfterHost = "/"
	}
	return protocol + "://" + host + partAfterHost
}

// Domain returns the origin of a destination, e.g. "https://example.com"
func Domain(protocol, host string) string {
	return protocol + "://" + host
}

// IsDefaultPort reports whether port is the conventional port of protocol
func IsDefaultPort(protocol, port string) bool {
	return protocol == "https" && port == "443" || protocol == "http" && port == "80"
}

func parseParams(params string) (sessionID string, resourceType ResourceType, charset string, ok bool) {
	parts := strings.Split(params, flagSeparator)
	if len(parts) > 3 || parts[0] == "" {
		return "", ResourceNone, "", false
	}

	sessionID = parts[0]
	if len(parts) > 1 {
		switch ResourceType(parts[1]) {
		case ResourceNone, ResourceIframe, ResourceScript:
			resourceType = ResourceType(parts[1])
		default:
			return "", ResourceNone, "", false
		}
	}
	if len(parts) > 2 {
		charset = parts[2]
	}

	return sessionID, resourceType, charset, true
}

func isSupportedURL(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
