package bridge

import "github.com/wabridge/bridge-server-go/internal/whatsapp"

type ReadyPayload struct {
	Info *whatsapp.Info `json:"info"`
}

type MessagesPayload struct {
	ChatID   string             `json:"chatId"`
	Messages []whatsapp.Message `json:"messages"`
}

// MessagePayload is used for both message and message_sent.
type MessagePayload struct {
	ChatID  string           `json:"chatId"`
	Message whatsapp.Message `json:"message"`
}

type AckPayload struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
}

type DisconnectedPayload struct {
	Reason string `json:"reason"`
}

type AuthFailurePayload struct {
	Message string `json:"message"`
}

// SendParams is the send-message command body.
type SendParams struct {
	ChatID          string `json:"chatId"`
	Message         string `json:"message"`
	QuotedMessageID string `json:"quotedMessageId,omitempty"`
}
