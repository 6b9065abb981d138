package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type ChatMessage struct {
	ID           string    `json:"id"`
	RideID       ID        `json:"rideId,omitempty"`
	Message      string    `json:"message"`
	SenderID     ID        `json:"senderId"`
	SenderName   string    `json:"senderName"`
	Timestamp    time.Time `json:"timestamp"`
	IsFromDriver bool      `json:"isFromDriver"`
}

// UnmarshalJSON fills the gaps the backend leaves: a missing id gets a fresh
// UUID and a missing or unreadable timestamp becomes the receive time.
func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	type plain ChatMessage
	var wire struct {
		plain
		ID        json.RawMessage `json:"id"`
		Timestamp string          `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	*m = ChatMessage(wire.plain)

	var id ID
	if len(wire.ID) > 0 && json.Unmarshal(wire.ID, &id) == nil && !id.IsZero() {
		m.ID = id.String()
	} else {
		m.ID = uuid.NewString()
	}

	if parsed, ok := ParseTimestamp(wire.Timestamp); ok {
		m.Timestamp = parsed
	} else {
		m.Timestamp = time.Now()
	}
	return nil
}
