// Package main is the entry point of the session proxy.
//
// The proxy serves browser test sessions: pages are requested through proxy
// URLs of the form http://host:port/{sessionId}/{destUrl}, the proxy fetches
// the destination, injects the client runtime into pages and answers the
// runtime's service messages.
//
// Listeners:
//
//	:port              proxy URLs, proxy-internal routes, /_admin API
//	:cross-domain-port proxy URLs and proxy-internal routes
//
// Configuration:
//   - YAML or TOML file (-config)
//   - Environment variables (override the file)
//   - CLI flags (override both)
//   - Defaults for development
//
// Usage:
//
//	# Production mode
//	./server -config proxy.yaml
//
//	# Development mode (console logs, debug level)
//	./server -dev -port 1337 -cross-domain-port 1338
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
