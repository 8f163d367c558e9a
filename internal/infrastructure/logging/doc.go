// Package logging provides structured logging for the Gray Logic node.
//
// It wraps log/slog so every component logs with the same default
// fields (service, version) and the same level filtering.
//
// Configuration:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// Usage:
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("session connected", "client_id", clientID)
//
// Never log broker passwords or the InfluxDB token.
package logging
