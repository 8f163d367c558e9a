// Package mqtt provides the broker session for a Gray Logic node.
//
// This package manages:
//   - One clean MQTT session at a time, opened on demand by the caller
//   - Last Will and Testament registered with every handshake
//   - Message publishing with QoS and retain flags
//   - A bounded inbox that decouples paho's delivery goroutines from the
//     caller's single-threaded processing loop
//
// # Reconnection
//
// Automatic reconnect is disabled. The node's session manager decides
// when to reconnect (fixed interval) so that every new session goes
// through the same handshake: will, online status, command subscription.
//
// # Usage
//
//	client := mqtt.New(cfg.MQTT)
//	err := client.Connect(mqtt.ConnectOptions{
//	    ClientID: "ESPClient-node-1",
//	    Will: &mqtt.Will{Topic: "device/status/node-1", Payload: offline, QoS: 1, Retained: true},
//	})
//	_ = client.Subscribe("device/command/node-1", 1)
//
//	// From the processing loop:
//	client.Drain(16, func(topic string, payload []byte) bool { ...; return true })
//
// The inbox outlives individual sessions. Messages queued when a session
// closes are handed out after the next Connect.
package mqtt
