// Package logging provides structured logging for the Modbus mapper.
//
// It wraps log/slog so every component logs with the same default fields
// (service, version) and the same level filtering.
//
// Configuration in config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	bridgeLog := logger.Component("bridge")
//	bridgeLog.Warn("read failed", "device", id, "error", err)
//
// Never log MQTT passwords or InfluxDB tokens.
package logging
