package node

import "encoding/json"

// StatusPayload formats the canonical status record for the status topic.
func StatusPayload(id Identity, status Status) []byte {
	return mustMarshal(StatusRecord{
		DeviceID: id.DeviceID,
		Status:   status,
		Version:  id.Version,
	})
}

// InfoPayload formats the canonical info record for the info topic.
func InfoPayload(rec InfoRecord) []byte {
	return mustMarshal(rec)
}

// ClearPayload is the empty retained payload that removes the broker's
// stored status record.
func ClearPayload() []byte {
	return []byte{}
}

// BuildInfoRecord gathers the info snapshot from sys. The status is
// always online: a node only answers info while its session is up.
func BuildInfoRecord(id Identity, sys SystemInfo) InfoRecord {
	return InfoRecord{
		DeviceID:   id.DeviceID,
		MAC:        sys.MAC(),
		Status:     StatusOnline,
		Version:    id.Version,
		IP:         sys.IP(),
		Uptime:     uint64(sys.Uptime().Seconds()),
		SSID:       sys.SSID(),
		RSSI:       sys.RSSI(),
		FreeMemory: sys.FreeMemory(),
	}
}

// mustMarshal encodes records made only of strings and integers, which
// cannot fail to marshal.
func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic("node: marshal presence record: " + err.Error())
	}
	return b
}
