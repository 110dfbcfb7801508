// Package monitoring exposes Prometheus metrics for the proxy.
//
// Metrics live on a private registry so several proxies (or tests) can run
// in one process. Handler serves them in the exposition format and
// Middleware records inbound HTTP traffic for gin engines.
//
// Metric families:
//   - proxy_http_*: inbound requests by route, method and status
//   - proxy_dispatch_total: outcome of resolving a request (routed, proxied, rejected)
//   - proxy_sessions_*: open sessions and sessions opened
//   - proxy_service_messages_total: service messages by command and status
//   - proxy_destination_*: destination latency and failures
//   - proxy_processed_resources_total: resources rewritten by kind
//   - proxy_file_downloads_total: attachments reported to sessions
package monitoring
