package model

import "time"

type Message struct {
	ID         int64         `db:"id" json:"id"`
	UserID     string        `db:"user_id" json:"user_id"`
	ChatID     string        `db:"chat_id" json:"chat_id"`
	MessageID  string        `db:"message_id" json:"message_id"`
	Content    *string       `db:"content" json:"content"`
	FromMe     bool          `db:"from_me" json:"from_me"`
	FromName   *string       `db:"from_name" json:"from_name"`
	FromNumber *string       `db:"from_number" json:"from_number"`
	Type       string        `db:"type" json:"type"`
	Timestamp  int64         `db:"timestamp" json:"timestamp"`
	Status     MessageStatus `db:"status" json:"status"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time     `db:"updated_at" json:"updated_at"`
}

type UpsertMessageParams struct {
	UserID     string
	ChatID     string
	MessageID  string
	Content    string
	FromMe     bool
	FromName   string
	FromNumber string
	Type       string
	Timestamp  int64
	Status     MessageStatus
}
