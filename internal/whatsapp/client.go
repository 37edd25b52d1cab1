// Package whatsapp exposes the narrow set of WhatsApp capabilities the bridge
// needs and a whatsmeow-backed implementation of it.
package whatsapp

import "context"

// Acknowledgment codes carried on messages and AckEvent.
const (
	AckError     = -1
	AckPending   = 0
	AckSent      = 1
	AckDelivered = 2
	AckRead      = 3
)

// Info describes the linked account once the client is ready.
type Info struct {
	JID      string `json:"wid"`
	Phone    string `json:"phone"`
	PushName string `json:"pushname"`
	Platform string `json:"platform"`
}

type Contact struct {
	Name   string `json:"name"`
	Number string `json:"number"`
}

type Message struct {
	ID        string  `json:"id"`
	ChatID    string  `json:"chatId"`
	Body      string  `json:"body"`
	FromMe    bool    `json:"fromMe"`
	From      string  `json:"from"`
	To        string  `json:"to"`
	Author    string  `json:"author,omitempty"`
	Timestamp int64   `json:"timestamp"`
	Type      string  `json:"type"`
	HasMedia  bool    `json:"hasMedia"`
	Ack       int     `json:"ack"`
	IsGroup   bool    `json:"isGroup"`
	Contact   Contact `json:"contact"`

	// quote carries what a reply needs to reference this message.
	quote *quoteRef
}

type LastMessage struct {
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
	FromMe    bool   `json:"fromMe"`
}

type Chat struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	PhoneNumber string       `json:"phoneNumber,omitempty"`
	Avatar      string       `json:"avatar"`
	IsGroup     bool         `json:"isGroup"`
	IsArchived  bool         `json:"isArchived"`
	IsMuted     bool         `json:"isMuted"`
	UnreadCount int          `json:"unreadCount"`
	LastMessage *LastMessage `json:"lastMessage"`
}

// Event is one lifecycle or data notification produced by a Client.
type Event interface {
	eventName() string
}

type QREvent struct {
	Code string
}

type ReadyEvent struct {
	Info Info
}

type MessageEvent struct {
	Message Message
}

type AckEvent struct {
	ChatID     string
	MessageIDs []string
	Ack        int
}

type DisconnectedEvent struct {
	Reason string
}

type AuthFailureEvent struct {
	Message string
}

// ChatUpdateEvent reports archive or mute changes made on another device.
type ChatUpdateEvent struct {
	ChatID   string
	Archived *bool
	Muted    *bool
}

// HistorySyncedEvent follows a history sync that changed the chat list.
type HistorySyncedEvent struct {
	Chats int
}

func (QREvent) eventName() string            { return "qr" }
func (ReadyEvent) eventName() string         { return "ready" }
func (MessageEvent) eventName() string       { return "message" }
func (AckEvent) eventName() string           { return "message_ack" }
func (DisconnectedEvent) eventName() string  { return "disconnected" }
func (AuthFailureEvent) eventName() string   { return "auth_failure" }
func (ChatUpdateEvent) eventName() string    { return "chat_update" }
func (HistorySyncedEvent) eventName() string { return "history_sync" }

// EventName returns a stable label for an event, used in logs and metrics.
func EventName(ev Event) string {
	return ev.eventName()
}

type EventHandler func(Event)

// Client is one user's WhatsApp connection.
type Client interface {
	// Start connects and delivers every subsequent event to handler.
	Start(ctx context.Context, handler EventHandler) error
	// Info is nil until the client is ready.
	Info() *Info
	// Chats returns at most limit chats, most recent first.
	Chats(ctx context.Context, limit int) ([]Chat, error)
	// Messages returns the last limit messages of a chat in time order.
	Messages(ctx context.Context, chatID string, limit int) ([]Message, error)
	// SendText sends text to a chat, as a reply when quoted is not nil.
	SendText(ctx context.Context, chatID, text string, quoted *Message) (*Message, error)
	Close() error
}

// History is the mirrored copy of a user's chats from earlier runs. A linked
// device that reconnects gets no history sync, so clients start from it.
type History interface {
	// RecentChats returns at most limit chats, most recent first.
	RecentChats(ctx context.Context, userID string, limit int) ([]Chat, error)
	// RecentMessages returns the newest limit messages of a chat in time order.
	RecentMessages(ctx context.Context, userID, chatID string, limit int) ([]Message, error)
}

// Factory builds a Client bound to a user's auth profile.
type Factory interface {
	New(ctx context.Context, userID string) (Client, error)
}
