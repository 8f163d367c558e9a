package node

import "errors"

// Domain errors for the node package.
var (
	// ErrMalformedCommand is returned by ParseCommand when the payload is
	// not a JSON object or a field has the wrong type.
	ErrMalformedCommand = errors.New("node: malformed command")

	// ErrMissingAction is returned by ParseCommand when the payload has no action.
	ErrMissingAction = errors.New("node: command has no action")

	// ErrMissingUpdateTarget is returned when an update command carries
	// neither a usable version nor a usable url.
	ErrMissingUpdateTarget = errors.New("node: update command has no usable version or url")

	// ErrMissingDependency is returned by the constructors when a required
	// collaborator is nil.
	ErrMissingDependency = errors.New("node: missing dependency")

	// ErrInvalidIdentity is returned when the device identity is unusable.
	ErrInvalidIdentity = errors.New("node: invalid identity")

	// ErrInvalidConfig is returned when an update source or mode is unknown.
	ErrInvalidConfig = errors.New("node: invalid configuration")
)
