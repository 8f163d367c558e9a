// Package influxdb records node lifecycle telemetry in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library: connection
// management, batched non-blocking writes and health checks.
//
// # Measurements
//
//	node_events           tags: device_id, event   fields: count (+ event extras)
//	node_update_attempts  tags: device_id, result  fields: attempt_id, code, duration_ms
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteNodeEvent("node-1", "connect", nil)
//
// Telemetry is optional: Connect returns ErrDisabled when the section is
// disabled, and a node keeps running without it.
package influxdb
