package model

import "time"

// WhatsAppSession is the single persisted row describing a user's WhatsApp link.
type WhatsAppSession struct {
	UserID          string        `db:"user_id" json:"user_id"`
	Status          SessionStatus `db:"status" json:"status"`
	QRCode          *string       `db:"qr_code" json:"qr_code"`
	PhoneNumber     *string       `db:"phone_number" json:"phone_number"`
	LastConnectedAt *time.Time    `db:"last_connected_at" json:"last_connected_at"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
}

// IsLive reports whether the stored status claims a running client.
func (s *WhatsAppSession) IsLive() bool {
	return s.Status == SessionStatusConnecting || s.Status == SessionStatusConnected
}
