// Package middleware holds the gin middleware of the admin API and the
// proxy listeners: CORS, per-client rate limiting, request logging and a
// body size cap for service messages.
//
// Rate limiting applies to the admin API only. Proxied traffic comes from
// the browsers under test and is never throttled here; the destination
// limiter lives in the destination fetcher.
package middleware
