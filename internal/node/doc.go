// Package node implements the device-side control plane of a Gray Logic node.
//
// Three parts cooperate:
//
//   - Session owns the broker session. Each Tick either drains queued
//     inbound messages (connected) or, at most once per reconnect
//     interval, performs the connect handshake: last-will registration,
//     retained "online" status, command subscription, connect hook.
//   - Processor handles each inbound message. Messages on the device's
//     command topic are parsed and dispatched (update, delete, info);
//     everything else is forwarded to the generic message hook.
//   - The presence helpers (StatusPayload, InfoPayload) format the
//     records published on the status and info topics.
//
// # Execution Model
//
// Everything runs on the goroutine that calls Session.Tick. There is no
// internal concurrency and no locking: session state, identity and
// configuration are only touched from the tick path, so at most one
// firmware update can be in flight.
//
// Two phases block the tick loop:
//
//   - The Updater.Update call. While it runs the node neither processes
//     commands nor services reconnects. It cannot be cancelled; a stuck
//     update is only recovered by the device watchdog.
//   - The erase sequence, which ends in a restart request and never
//     resumes processing.
//
// # Presence
//
// "online" is published, retained, only right after a successful
// handshake. "offline" is never published directly; it is the last-will
// payload registered with each handshake, so the broker emits it on any
// ungraceful disconnect. A device that dies mid-update leaves "updating"
// as the retained record until the broker's will fires or the device
// reconnects.
//
// # Topics
//
//	{status prefix}/{device id}   retained status records
//	{command prefix}/{device id}  inbound commands
//	{info prefix}/{device id}     info replies (not retained)
package node
