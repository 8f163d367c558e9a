package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementNodeEvents     = "node_events"
	measurementUpdateAttempts = "node_update_attempts"
)

// WriteNodeEvent records a lifecycle event (connect, erase, update_begin,
// ...) for a device. Non-blocking; points are batched.
//
// Example:
//
//	client.WriteNodeEvent("node-1", "connect", map[string]any{"version": "1.2.0"})
func (c *Client) WriteNodeEvent(deviceID, event string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(nodeEventPoint(deviceID, event, fields, time.Now()))
}

// WriteUpdateOutcome records the result of one update attempt.
//
// Parameters:
//   - deviceID: Device identifier
//   - attemptID: Correlation id of the attempt
//   - result: "ok", "failed" or "no_updates"
//   - code: Updater code (0 for ok)
//   - duration: Wall time of the attempt
func (c *Client) WriteUpdateOutcome(deviceID, attemptID, result string, code int, duration time.Duration) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(updateOutcomePoint(deviceID, attemptID, result, code, duration, time.Now()))
}

func nodeEventPoint(deviceID, event string, fields map[string]any, ts time.Time) *write.Point {
	f := map[string]any{"count": 1}
	for k, v := range fields {
		f[k] = v
	}
	return write.NewPoint(
		measurementNodeEvents,
		map[string]string{
			"device_id": deviceID,
			"event":     event,
		},
		f,
		ts,
	)
}

func updateOutcomePoint(deviceID, attemptID, result string, code int, duration time.Duration, ts time.Time) *write.Point {
	return write.NewPoint(
		measurementUpdateAttempts,
		map[string]string{
			"device_id": deviceID,
			"result":    result,
		},
		map[string]any{
			"attempt_id":  attemptID,
			"code":        code,
			"duration_ms": duration.Milliseconds(),
		},
		ts,
	)
}
