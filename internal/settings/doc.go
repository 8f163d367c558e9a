// Package settings persists node-local state in SQLite: a small key/value
// table and the history of firmware update attempts.
//
// Everything here is wiped by a factory erase (Store.Erase).
package settings
