package realtime

import (
	"encoding/json"
	"fmt"
)

// Server to client events.
const (
	EventQR           = "qr"
	EventReady        = "ready"
	EventChats        = "chats"
	EventMessages     = "messages"
	EventMessage      = "message"
	EventMessageSent  = "message_sent"
	EventMessageAck   = "message_ack"
	EventDisconnected = "disconnected"
	EventAuthFailure  = "auth_failure"
	EventError        = "error"
)

// Client to server commands.
const (
	CommandInitialize  = "initialize"
	CommandSendMessage = "send-message"
	CommandGetChats    = "get-chats"
	CommandGetMessages = "get-messages"
	CommandDisconnect  = "disconnect-whatsapp"
)

// Event is the frame exchanged in both directions: {"event": name, "data": payload}.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

func NewEvent(name string, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", name, err)
	}
	return Event{Name: name, Data: raw}, nil
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func ErrorEvent(message string) Event {
	ev, _ := NewEvent(EventError, ErrorPayload{Message: message})
	return ev
}
