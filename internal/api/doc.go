// Package api implements the read-only HTTP status API and WebSocket feed
// of the Modbus mapper.
//
// This package provides:
//   - Device views combining the loaded profile, the last reported values
//     and per-device reachability
//   - Property history queries backed by SQLite when the database is enabled
//   - A JSON metrics summary and the Prometheus exposition at /metrics
//   - A WebSocket hub relaying "property.changed" events
//
// # Lifecycle
//
//	hub := api.NewHub(cfg.WebSocket, logger)
//	go hub.Run(ctx)
//	server, err := api.New(api.Deps{..., ExternalHub: hub})
//	server.Start(ctx)
//	defer server.Close()
//
// The API never writes to devices; writes arrive only as twin deltas over
// MQTT. It keeps serving while the MQTT session is down and reports the
// health status as "degraded".
package api
