// Package server wires the proxy together: configuration, logging, metrics,
// tracing, the destination fetcher, the proxy-internal router and the admin
// API, served on the main and cross-domain listeners.
package server
