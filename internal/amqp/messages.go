package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"fintrack/internal/store"
)

// ChangeMessage tells every instance that a user's collection changed. It
// carries no record data: receivers re-read from the database.
type ChangeMessage struct {
	UserID     string    `json:"userId"`
	Collection string    `json:"collection"`
	Origin     string    `json:"origin,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

var errIncompleteMessage = errors.New("change message needs userId and collection")

// NewChangeMessage stamps c with the publishing instance and the current time.
func NewChangeMessage(c store.Change, origin string) *ChangeMessage {
	return &ChangeMessage{
		UserID:     c.UserID,
		Collection: c.Collection,
		Origin:     origin,
		Timestamp:  time.Now(),
	}
}

// Change strips the envelope.
func (m *ChangeMessage) Change() store.Change {
	return store.Change{UserID: m.UserID, Collection: m.Collection}
}

// ToJSON converts the message to JSON bytes
func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ChangeMessageFromJSON decodes and checks a message body.
func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.UserID == "" || msg.Collection == "" {
		return nil, errIncompleteMessage
	}
	return &msg, nil
}
