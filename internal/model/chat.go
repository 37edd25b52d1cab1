package model

import "time"

type Chat struct {
	ID              int64      `db:"id" json:"id"`
	UserID          string     `db:"user_id" json:"user_id"`
	ChatID          string     `db:"chat_id" json:"chat_id"`
	Name            *string    `db:"name" json:"name"`
	PhoneNumber     *string    `db:"phone_number" json:"phone_number"`
	IsGroup         bool       `db:"is_group" json:"is_group"`
	IsArchived      bool       `db:"is_archived" json:"is_archived"`
	IsMuted         bool       `db:"is_muted" json:"is_muted"`
	UnreadCount     int        `db:"unread_count" json:"unread_count"`
	LastMessage     *string    `db:"last_message" json:"last_message"`
	LastMessageTime *time.Time `db:"last_message_time" json:"last_message_time"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

type UpsertChatParams struct {
	UserID          string
	ChatID          string
	Name            string
	PhoneNumber     string
	IsGroup         bool
	IsArchived      bool
	IsMuted         bool
	UnreadCount     int
	LastMessage     *string
	LastMessageTime *time.Time
}

// TouchChatParams records a new message on a chat, creating the row if needed.
type TouchChatParams struct {
	UserID          string
	ChatID          string
	Name            string
	PhoneNumber     string
	IsGroup         bool
	LastMessage     string
	LastMessageTime time.Time
	IncrementUnread bool
}
