// Package agent is the node's own implementation of node.Hooks.
//
// It turns lifecycle events into durable records and telemetry:
//
//   - every event is logged
//   - connect, erase and update events go to InfluxDB when enabled
//   - each update attempt gets a UUID correlation id and a row in the
//     settings store; the last outcome is kept under well-known keys
//   - on erase, the settings store is wiped and the configured erase
//     command runs before the node restarts
//
// Application messages (OnMessage) are logged and otherwise ignored;
// application logic is out of scope for the node agent.
package agent
