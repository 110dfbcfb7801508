// Package router dispatches proxy-internal requests.
//
// Routes are either exact ("GET /task.js") or parameterised
// ("GET /uploads/{sessionId}/{fileName}"). Exact routes are looked up first;
// parameterised routes are tried in registration order and the first match
// wins. A route target is a Handler or StaticContent.
package router

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/GriffinCanCode/sessionproxy/internal/shared/types"
	"github.com/GriffinCanCode/sessionproxy/internal/shared/utils"
)

var (
	// ErrInvalidRoute is returned for malformed or duplicate route specs
	ErrInvalidRoute = errors.New("invalid route")
	// ErrStaticContent is returned when static content cannot be prepared
	ErrStaticContent = errors.New("invalid static content")
)

// StaticCacheControl is sent with every static response
const StaticCacheControl = "max-age=30, must-revalidate"

var paramToken = regexp.MustCompile(`^\{(\S+)\}$`)

// Params are the named segments captured by a parameterised route
type Params map[string]string

// Target is what a route resolves to: a Handler or StaticContent
type Target interface {
	target()
}

// Handler serves a routed request
type Handler func(w http.ResponseWriter, r *http.Request, info types.ServerInfo, params Params)

// StaticContent is served as-is with an ETag
type StaticContent struct {
	ContentType string
	Content     []byte
	ETag        string
}

func (Handler) target()       {}
func (StaticContent) target() {}

// Preprocessor transforms static content once, at registration
type Preprocessor func(StaticContent) (StaticContent, error)

type exactRoute struct {
	handler Handler
	static  *StaticContent
}

type paramRoute struct {
	re         *regexp.Regexp
	paramNames []string
	handler    Handler
}

// Router holds the route tables. Register all routes before serving;
// the tables are read-only afterwards.
type Router struct {
	routes      map[string]exactRoute
	paramRoutes []paramRoute
	preprocess  Preprocessor
}

// New creates a router. A nil preprocessor leaves static content unchanged.
func New(preprocess Preprocessor) *Router {
	if preprocess == nil {
		preprocess = func(c StaticContent) (StaticContent, error) { return c, nil }
	}
	return &Router{
		routes:     make(map[string]exactRoute),
		preprocess: preprocess,
	}
}

// GET registers a GET route and panics on an invalid one
func (r *Router) GET(pattern string, target Target) {
	r.mustRegister(http.MethodGet, pattern, target)
}

// POST registers a POST route and panics on an invalid one
func (r *Router) POST(pattern string, target Target) {
	r.mustRegister(http.MethodPost, pattern, target)
}

func (r *Router) mustRegister(method, pattern string, target Target) {
	if err := r.Register(method, pattern, target); err != nil {
		panic(err)
	}
}

// Register adds a route
func (r *Router) Register(method, pattern string, target Target) error {
	if method == "" || !strings.HasPrefix(pattern, "/") {
		return fmt.Errorf("%w: %s %q", ErrInvalidRoute, method, pattern)
	}

	tokens := strings.Split(pattern, "/")
	for _, token := range tokens {
		if paramToken.MatchString(token) {
			return r.registerWithParams(method, pattern, tokens, target)
		}
	}

	key := method + " " + pattern
	if _, exists := r.routes[key]; exists {
		return fmt.Errorf("%w: duplicate route %s", ErrInvalidRoute, key)
	}

	switch t := target.(type) {
	case Handler:
		if t == nil {
			return fmt.Errorf("%w: nil handler for %s", ErrInvalidRoute, key)
		}
		r.routes[key] = exactRoute{handler: t}
	case StaticContent:
		static, err := r.prepareStatic(t)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		r.routes[key] = exactRoute{static: &static}
	default:
		return fmt.Errorf("%w: unsupported target %T for %s", ErrInvalidRoute, target, key)
	}
	return nil
}

func (r *Router) registerWithParams(method, pattern string, tokens []string, target Target) error {
	handler, ok := target.(Handler)
	if !ok || handler == nil {
		return fmt.Errorf("%w: %s %s needs a handler", ErrInvalidRoute, method, pattern)
	}

	paramNames := make([]string, 0, len(tokens))
	seen := make(map[string]bool, len(tokens))
	parts := make([]string, len(tokens))

	for i, token := range tokens {
		m := paramToken.FindStringSubmatch(token)
		if m == nil {
			parts[i] = regexp.QuoteMeta(token)
			continue
		}
		if seen[m[1]] {
			return fmt.Errorf("%w: duplicate param %q in %s", ErrInvalidRoute, m[1], pattern)
		}
		seen[m[1]] = true
		paramNames = append(paramNames, m[1])
		parts[i] = `([^/]+)`
	}

	re, err := regexp.Compile("^" + regexp.QuoteMeta(method) + " " + strings.Join(parts, "/") + "$")
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidRoute, pattern, err)
	}

	r.paramRoutes = append(r.paramRoutes, paramRoute{
		re:         re,
		paramNames: paramNames,
		handler:    handler,
	})
	return nil
}

func (r *Router) prepareStatic(content StaticContent) (StaticContent, error) {
	processed, err := r.preprocess(content)
	if err != nil {
		return StaticContent{}, fmt.Errorf("%w: %v", ErrStaticContent, err)
	}
	if len(processed.Content) == 0 {
		return StaticContent{}, fmt.Errorf("%w: empty content", ErrStaticContent)
	}
	processed.ETag = utils.ETag(processed.Content)
	return processed, nil
}

// Route serves a request if a route matches it and reports whether it did.
// Matching runs on the escaped path, so an encoded slash stays inside its
// segment; captured params are handed over unescaped.
func (r *Router) Route(w http.ResponseWriter, req *http.Request, info types.ServerInfo) bool {
	query := req.Method + " " + req.URL.EscapedPath()

	if route, ok := r.routes[query]; ok {
		if route.static != nil {
			respondStatic(w, req, route.static)
		} else {
			route.handler(w, req, info, nil)
		}
		return true
	}

	for _, route := range r.paramRoutes {
		m := route.re.FindStringSubmatch(query)
		if m == nil {
			continue
		}

		params := make(Params, len(route.paramNames))
		for i, name := range route.paramNames {
			value, err := url.PathUnescape(m[i+1])
			if err != nil {
				value = m[i+1]
			}
			params[name] = value
		}
		route.handler(w, req, info, params)
		return true
	}

	return false
}

func respondStatic(w http.ResponseWriter, req *http.Request, content *StaticContent) {
	h := w.Header()
	h.Set("Cache-Control", StaticCacheControl)
	h.Set("ETag", content.ETag)

	if utils.MatchesETag(req.Header.Get("If-None-Match"), content.ETag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	if content.ContentType != "" {
		h.Set("Content-Type", content.ContentType)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content.Content)
}
