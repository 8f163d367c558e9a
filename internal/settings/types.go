package settings

import "time"

// Well-known keys written by the node agent.
const (
	KeyLastConnectAt    = "last_connect_at"
	KeyLastUpdateAt     = "last_update_at"
	KeyLastUpdateResult = "last_update_result"
	KeyBootCount        = "boot_count"
)

// Setting is one persisted key/value pair.
type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Attempt is one firmware update attempt.
type Attempt struct {
	ID         string     `json:"id"`
	URL        string     `json:"url"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Result     string     `json:"result,omitempty"`
	Code       int        `json:"code"`
	Message    string     `json:"message,omitempty"`
}
