package model

// SessionStatus is the persisted status of a user's WhatsApp link.
type SessionStatus string

const (
	SessionStatusConnecting   SessionStatus = "connecting"
	SessionStatusConnected    SessionStatus = "connected"
	SessionStatusDisconnected SessionStatus = "disconnected"
	SessionStatusFailed       SessionStatus = "failed"
)

type MessageStatus string

const (
	MessageStatusPending   MessageStatus = "pending"
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
	MessageStatusFailed    MessageStatus = "failed"
)

// Acknowledgment codes reported for a message.
const (
	AckPending   = 0
	AckSent      = 1
	AckDelivered = 2
	AckRead      = 3
	AckError     = -1
)

// StatusFromAck maps an acknowledgment code to its status label.
// Unknown codes map to failed.
func StatusFromAck(ack int) MessageStatus {
	switch ack {
	case AckPending:
		return MessageStatusPending
	case AckSent:
		return MessageStatusSent
	case AckDelivered:
		return MessageStatusDelivered
	case AckRead:
		return MessageStatusRead
	default:
		return MessageStatusFailed
	}
}

// AckFromStatus is the inverse of StatusFromAck.
func AckFromStatus(status MessageStatus) int {
	switch status {
	case MessageStatusPending:
		return AckPending
	case MessageStatusSent:
		return AckSent
	case MessageStatusDelivered:
		return AckDelivered
	case MessageStatusRead:
		return AckRead
	default:
		return AckError
	}
}
