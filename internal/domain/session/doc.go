// Package session models one browser-automation test run on the proxy.
//
// A Session owns the cookie jar of the run, the scripts and styles injected
// into proxied pages, the uploaded files and the task script that boots the
// client runtime on every page load. Service messages sent by the client
// runtime are decoded into a closed set of commands and executed against the
// session.
//
// Components:
//   - Session: identity, cookies, injectables, task script, commands
//   - Registry: open sessions indexed by id
//   - Capabilities: hooks a deployment plugs in (payload scripts, file
//     downloads, page errors, auth credentials)
//   - Deployment: Capabilities configured from static settings
//
// Service Message Flow:
//  1. Client POSTs JSON {"cmd": ..., "sessionId": ...} to /messaging
//  2. ParseMessage peeks the command and decodes the typed payload
//  3. Session.HandleServiceMessage executes it and returns a JSON-able result
//
// Example Usage:
//
//	s := session.New(session.Options{Uploads: storage, Logger: log})
//	if err := registry.Add(s); err != nil { ... }
//	script, err := s.TaskScript(referer, cookieURL, info, false, true)
package session
