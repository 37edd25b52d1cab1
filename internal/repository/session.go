package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/wabridge/bridge-server-go/internal/database"
	"github.com/wabridge/bridge-server-go/internal/model"
)

// SessionRepository persists the one-row-per-user WhatsApp session state.
// Every write is an upsert so the row exists after the first lifecycle event.
type SessionRepository interface {
	FindByUserID(ctx context.Context, userID string) (*model.WhatsAppSession, error)
	MarkConnecting(ctx context.Context, userID string) error
	SetQRCode(ctx context.Context, userID string, qrCode string) error
	MarkConnected(ctx context.Context, userID string, phoneNumber string) error
	MarkDisconnected(ctx context.Context, userID string) error
	MarkFailed(ctx context.Context, userID string) error
	FindStaleLive(ctx context.Context, before time.Time) ([]model.WhatsAppSession, error)
	MarkDisconnectedIfStale(ctx context.Context, userID string, before time.Time) (bool, error)
	WithTx(tx *sqlx.Tx) SessionRepository
}

type sessionRepo struct {
	db database.DBTX
}

func NewSessionRepository(db *sqlx.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) WithTx(tx *sqlx.Tx) SessionRepository {
	return &sessionRepo{db: tx}
}

func (r *sessionRepo) FindByUserID(ctx context.Context, userID string) (*model.WhatsAppSession, error) {
	var session model.WhatsAppSession
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM whatsapp_sessions WHERE user_id = $1
	`, userID)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) upsert(ctx context.Context, userID string, status model.SessionStatus, qrCode, phoneNumber *string, connectedAt *time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO whatsapp_sessions (user_id, status, qr_code, phone_number, last_connected_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			status = EXCLUDED.status,
			qr_code = EXCLUDED.qr_code,
			phone_number = COALESCE(EXCLUDED.phone_number, whatsapp_sessions.phone_number),
			last_connected_at = COALESCE(EXCLUDED.last_connected_at, whatsapp_sessions.last_connected_at),
			updated_at = EXCLUDED.updated_at
	`, userID, status, qrCode, phoneNumber, connectedAt, time.Now())
	return err
}

func (r *sessionRepo) MarkConnecting(ctx context.Context, userID string) error {
	return r.upsert(ctx, userID, model.SessionStatusConnecting, nil, nil, nil)
}

func (r *sessionRepo) SetQRCode(ctx context.Context, userID string, qrCode string) error {
	return r.upsert(ctx, userID, model.SessionStatusConnecting, &qrCode, nil, nil)
}

func (r *sessionRepo) MarkConnected(ctx context.Context, userID string, phoneNumber string) error {
	now := time.Now()
	return r.upsert(ctx, userID, model.SessionStatusConnected, nil, nullIfEmpty(phoneNumber), &now)
}

func (r *sessionRepo) MarkDisconnected(ctx context.Context, userID string) error {
	return r.upsert(ctx, userID, model.SessionStatusDisconnected, nil, nil, nil)
}

func (r *sessionRepo) MarkFailed(ctx context.Context, userID string) error {
	return r.upsert(ctx, userID, model.SessionStatusFailed, nil, nil, nil)
}

func (r *sessionRepo) FindStaleLive(ctx context.Context, before time.Time) ([]model.WhatsAppSession, error) {
	var sessions []model.WhatsAppSession
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM whatsapp_sessions
		WHERE status IN ('connecting', 'connected')
		AND updated_at < $1
		ORDER BY updated_at ASC
	`, before)
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// MarkDisconnectedIfStale only flips the row if no lifecycle write touched it since before.
func (r *sessionRepo) MarkDisconnectedIfStale(ctx context.Context, userID string, before time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE whatsapp_sessions SET
			status = 'disconnected',
			qr_code = NULL,
			updated_at = $3
		WHERE user_id = $1
		AND status IN ('connecting', 'connected')
		AND updated_at < $2
	`, userID, before, time.Now())
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
