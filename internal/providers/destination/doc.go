// Package destination sends proxied requests to their real destination.
//
// The Fetcher is resty on top of a retryablehttp transport. Only transport
// failures of idempotent requests are retried; any response, whatever its
// status, is returned to the caller as-is. Redirects are never followed:
// the browser must see them so the client runtime keeps its URLs proxied.
// Requests pass a shared rate limiter and a circuit breaker per destination
// host.
package destination
