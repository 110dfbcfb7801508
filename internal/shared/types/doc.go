// Package types provides shared data structures for the proxy.
//
// Core Types:
//   - ServerInfo: where the proxy listens, handed to every route handler
//
// Request Types:
//   - CreateSessionRequest, ProxyURLRequest: admin API payloads
//   - ErrorResponse: JSON error body
//
// Example Usage:
//
//	info := types.NewServerInfo("localhost", 1337, 1338)
//	script := info.Domain + "/task.js"
package types
