// Package cookies keeps the cookies of one proxied test session.
//
// The browser never sees destination cookies directly: the proxy stores
// Set-Cookie headers here, attaches them to outgoing destination requests
// and hands the script-visible subset to the client as a document.cookie
// string.
package cookies

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/net/publicsuffix"
)

// Jar is a session cookie store. It is safe for concurrent use.
//
// httpOnly mirrors every HttpOnly cookie under the same URL, Domain and
// Path, so cookiejar scopes the flag exactly like the cookie it marks.
type Jar struct {
	mu       sync.RWMutex
	jar      *cookiejar.Jar
	httpOnly *cookiejar.Jar
}

// NewJar creates an empty jar using the public suffix list for domain scoping
func NewJar() *Jar {
	opts := &cookiejar.Options{PublicSuffixList: publicsuffix.List}
	// cookiejar.New never returns an error
	jar, _ := cookiejar.New(opts)
	httpOnly, _ := cookiejar.New(opts)
	return &Jar{jar: jar, httpOnly: httpOnly}
}

// SetByServer stores the Set-Cookie headers of a destination response
func (j *Jar) SetByServer(u *url.URL, header http.Header) {
	cookies := (&http.Response{Header: header}).Cookies()
	if len(cookies) == 0 {
		return
	}

	marks := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		mark := *c
		if !c.HttpOnly {
			// same name, domain and path: drops a previous HttpOnly mark
			mark.MaxAge = -1
		}
		marks = append(marks, &mark)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	j.jar.SetCookies(u, cookies)
	j.httpOnly.SetCookies(u, marks)
}

// SetByClient stores a cookie assigned through document.cookie.
// The value uses Set-Cookie syntax; HttpOnly is not honoured from scripts.
func (j *Jar) SetByClient(rawURL, cookie string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse cookie url: %w", err)
	}

	c, err := http.ParseSetCookie(cookie)
	if err != nil {
		return fmt.Errorf("parse cookie: %w", err)
	}
	c.HttpOnly = false

	j.mu.Lock()
	defer j.mu.Unlock()

	for _, hidden := range j.httpOnly.Cookies(u) {
		if hidden.Name == c.Name {
			// scripts cannot overwrite an HttpOnly cookie
			return nil
		}
	}
	j.jar.SetCookies(u, []*http.Cookie{c})
	return nil
}

// ClientString returns the document.cookie value for a URL
func (j *Jar) ClientString(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	hidden := make(map[string]struct{})
	for _, c := range j.httpOnly.Cookies(u) {
		hidden[c.Name+"="+c.Value] = struct{}{}
	}

	parts := make([]string, 0)
	for _, c := range j.jar.Cookies(u) {
		pair := c.Name + "=" + c.Value
		if _, ok := hidden[pair]; ok {
			continue
		}
		parts = append(parts, pair)
	}
	return strings.Join(parts, "; ")
}

// Header returns the Cookie request header value for a destination URL
func (j *Jar) Header(u *url.URL) string {
	j.mu.RLock()
	defer j.mu.RUnlock()

	cookies := j.jar.Cookies(u)
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}
