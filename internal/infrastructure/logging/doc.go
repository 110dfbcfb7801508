// Package logging builds the proxy's zap logger.
//
// Usage:
//
//	logger, err := logging.New(logging.Config{Level: "info"})
//	fetchLog := logger.ForComponent("destination")
//	fetchLog.Info("fetched", zap.String("session_id", id))
package logging
