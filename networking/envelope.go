package networking

import (
	"bytes"
	"encoding/json"
)

// Wire event names.
const (
	EventRideRequest       = "ride_request"
	EventRideStatusChanged = "ride:status:changed"
	EventDriverLocation    = "driver:location:update"
	EventRideAccepted      = "ride:accepted"
	EventRideCancelled     = "ride:cancelled"
	EventChatMessage       = "chat:message"
	EventMessage           = "message"

	EventJoin             = "join"
	EventLeave            = "leave"
	EventRideStatusUpdate = "ride:status:update"
	EventDriverLocationTx = "driver:location"

	EventPing       = "ping"
	EventPong       = "pong"
	EventConnect    = "connect"
	EventConnected  = "connected"
	EventDisconnect = "disconnect"
	EventError      = "error"
)

// domainEvents are handed to subscribers, every other name is dropped.
var domainEvents = map[string]bool{
	EventRideRequest:       true,
	EventRideStatusChanged: true,
	EventDriverLocation:    true,
	EventRideAccepted:      true,
	EventRideCancelled:     true,
	EventChatMessage:       true,
	EventMessage:           true,
}

func IsDomainEvent(name string) bool {
	return domainEvents[name]
}

// OutboundMessage is what Emit serializes: {"event": ..., "data": {...}}.
type OutboundMessage struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

func (m OutboundMessage) Encode() ([]byte, error) {
	if m.Data == nil {
		m.Data = map[string]any{}
	}
	return json.Marshal(m)
}

// InboundEnvelope is a decoded frame. Data holds the raw payload object.
type InboundEnvelope struct {
	Event string
	Data  json.RawMessage
}

// Decode unmarshals the payload into v.
func (e InboundEnvelope) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

var emptyObject = json.RawMessage(`{}`)

// DecodeEnvelope dispatches on the "event" key when present, falling back to
// "type" (payload is then the whole object) and finally to a generic
// "message" event.
func DecodeEnvelope(frame []byte) (InboundEnvelope, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(frame, &fields); err != nil {
		return InboundEnvelope{}, &ProtocolError{Frame: abbreviate(frame), Reason: "frame is not a JSON object"}
	}

	if raw, found := fields["event"]; found {
		var name string
		if err := json.Unmarshal(raw, &name); err != nil || name == "" {
			return InboundEnvelope{}, &ProtocolError{Frame: abbreviate(frame), Reason: "event name is not a string"}
		}

		data := fields["data"]
		if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
			data = emptyObject
		}
		return InboundEnvelope{Event: name, Data: data}, nil
	}

	if raw, found := fields["type"]; found {
		var name string
		if err := json.Unmarshal(raw, &name); err != nil || name == "" {
			return InboundEnvelope{}, &ProtocolError{Frame: abbreviate(frame), Reason: "type is not a string"}
		}
		return InboundEnvelope{Event: name, Data: json.RawMessage(frame)}, nil
	}

	return InboundEnvelope{Event: EventMessage, Data: json.RawMessage(frame)}, nil
}

func abbreviate(frame []byte) string {
	const limit = 120
	if len(frame) <= limit {
		return string(frame)
	}
	return string(frame[:limit]) + "..."
}
