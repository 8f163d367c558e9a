package node

// topics holds the three per-device topics, built once at construction.
type topics struct {
	status  string
	command string
	info    string
}

func newTopics(cfg Config, deviceID string) topics {
	return topics{
		status:  channel(cfg.StatusPrefix, deviceID),
		command: channel(cfg.CommandPrefix, deviceID),
		info:    channel(cfg.InfoPrefix, deviceID),
	}
}

// channel joins a prefix and a device ID into a topic.
//
// Example: channel("device/status", "node-1") = "device/status/node-1"
func channel(prefix, deviceID string) string {
	return prefix + "/" + deviceID
}
