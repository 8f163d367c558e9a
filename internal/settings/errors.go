package settings

import "errors"

var (
	// ErrNotFound is returned when a key or attempt does not exist.
	ErrNotFound = errors.New("settings: not found")

	// ErrInvalidKey is returned for an empty key.
	ErrInvalidKey = errors.New("settings: invalid key")
)
