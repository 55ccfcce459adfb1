package amqp

import (
	"encoding/json"
	"time"
)

// Sync message kinds, matching the two registry tables
const (
	KindHomeowner  = "homeowner"
	KindPortalUser = "portal_user"
)

// RosterSyncMessage represents a lightweight message for syncing a registry row
// to the back-office sheet. It carries only the kind, ID and version; the
// worker fetches the full row from the registry.
type RosterSyncMessage struct {
	Kind      string    `json:"kind"`
	ID        int64     `json:"id"`
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// NewRosterSyncMessage creates a new sync message for a registry row
func NewRosterSyncMessage(kind string, id, version int64) *RosterSyncMessage {
	return &RosterSyncMessage{
		Kind:      kind,
		ID:        id,
		Version:   version,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *RosterSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RosterSyncMessageFromJSON creates a message from JSON bytes
func RosterSyncMessageFromJSON(data []byte) (*RosterSyncMessage, error) {
	var msg RosterSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
