package node

import (
	"encoding/json"
	"fmt"
)

// Action identifies a command.
type Action string

// Recognised actions. Anything else parses as ActionUnknown.
const (
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionInfo    Action = "info"
	ActionUnknown Action = "unknown"
)

// Command is a parsed command-channel message.
type Command struct {
	Action Action

	// Raw is the action string as received, kept for logging unknown actions.
	Raw string

	// Version and URL are only meaningful for update.
	Version string
	URL     string
}

// wireCommand is the JSON shape of a command payload.
type wireCommand struct {
	Action  *string `json:"action"`
	Version string  `json:"version"`
	URL     string  `json:"url"`
}

// ParseCommand decodes a command payload.
//
// Returns ErrMalformedCommand when the payload is not a JSON object or a
// known field has the wrong type, and ErrMissingAction when the object
// has no action. Unrecognised actions are not an error.
func ParseCommand(payload []byte) (Command, error) {
	var w wireCommand
	if err := json.Unmarshal(payload, &w); err != nil {
		return Command{}, fmt.Errorf("%w: %w", ErrMalformedCommand, err)
	}
	if w.Action == nil {
		return Command{}, ErrMissingAction
	}

	cmd := Command{
		Raw:     *w.Action,
		Version: w.Version,
		URL:     w.URL,
	}
	switch a := Action(*w.Action); a {
	case ActionUpdate, ActionDelete, ActionInfo:
		cmd.Action = a
	default:
		cmd.Action = ActionUnknown
	}
	return cmd, nil
}
