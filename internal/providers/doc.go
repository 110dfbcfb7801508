// Package providers groups the proxy's outward-facing collaborators.
//
// Available Providers:
//   - destination: Fetcher for destination requests (retries, rate limit,
//     per-host circuit breaking)
//   - processing: Processor stage applied to resources that need rewriting,
//     with the page Injector as the default
//
// Example Usage:
//
//	fetcher := destination.New(destination.OptionsFromConfig(cfg.Destination))
//	resp, err := fetcher.Fetch(ctx, destination.Request{Method: "GET", URL: destURL})
package providers
