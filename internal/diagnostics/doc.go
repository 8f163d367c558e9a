// Package diagnostics provides the node's local read-only HTTP endpoint.
//
// It is meant for a technician on the local network or for a supervisor
// probing liveness. Nothing here can change node state; commands only
// arrive over MQTT.
//
// Routes:
//
//	GET /healthz    session state and dependency health (503 when degraded)
//	GET /info       the same record the info command publishes
//	GET /settings   persisted node settings
//	GET /updates    recent update attempts, newest first (?limit=N)
//
// Lifecycle:
//
//	srv, err := diagnostics.New(deps)
//	srv.Start(ctx)
//	defer srv.Close()
package diagnostics
