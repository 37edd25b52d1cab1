package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/wabridge/bridge-server-go/internal/database"
	"github.com/wabridge/bridge-server-go/internal/model"
)

type ChatRepository interface {
	// ListByUser returns chats newest first. A zero limit returns every row.
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]model.Chat, error)
	FindByChatID(ctx context.Context, userID, chatID string) (*model.Chat, error)
	Upsert(ctx context.Context, params model.UpsertChatParams) error
	Touch(ctx context.Context, params model.TouchChatParams) error
	SetArchived(ctx context.Context, userID, chatID string, archived bool) (*model.Chat, error)
	SetMuted(ctx context.Context, userID, chatID string, muted bool) (*model.Chat, error)
	WithTx(tx *sqlx.Tx) ChatRepository
}

type chatRepo struct {
	db database.DBTX
}

func NewChatRepository(db *sqlx.DB) ChatRepository {
	return &chatRepo{db: db}
}

func (r *chatRepo) WithTx(tx *sqlx.Tx) ChatRepository {
	return &chatRepo{db: tx}
}

func (r *chatRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]model.Chat, error) {
	chats := []model.Chat{}
	err := r.db.SelectContext(ctx, &chats, `
		SELECT * FROM chats
		WHERE user_id = $1
		ORDER BY last_message_time DESC NULLS LAST, id DESC
		LIMIT NULLIF($2::int, 0) OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return chats, nil
}

func (r *chatRepo) FindByChatID(ctx context.Context, userID, chatID string) (*model.Chat, error) {
	var chat model.Chat
	err := r.db.GetContext(ctx, &chat, `
		SELECT * FROM chats WHERE user_id = $1 AND chat_id = $2
	`, userID, chatID)
	return HandleNotFound(&chat, err)
}

func (r *chatRepo) Upsert(ctx context.Context, params model.UpsertChatParams) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO chats (
			user_id, chat_id, name, phone_number, is_group, is_archived, is_muted,
			unread_count, last_message, last_message_time
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id, chat_id) DO UPDATE SET
			name = EXCLUDED.name,
			phone_number = EXCLUDED.phone_number,
			is_group = EXCLUDED.is_group,
			is_archived = EXCLUDED.is_archived,
			is_muted = EXCLUDED.is_muted,
			unread_count = EXCLUDED.unread_count,
			last_message = EXCLUDED.last_message,
			last_message_time = EXCLUDED.last_message_time,
			updated_at = NOW()
	`,
		params.UserID, params.ChatID, nullIfEmpty(params.Name), nullIfEmpty(params.PhoneNumber),
		params.IsGroup, params.IsArchived, params.IsMuted, params.UnreadCount,
		params.LastMessage, params.LastMessageTime,
	)
	return err
}

// Touch records a message on the chat. Older messages never replace a newer preview.
func (r *chatRepo) Touch(ctx context.Context, params model.TouchChatParams) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO chats (
			user_id, chat_id, name, phone_number, is_group,
			unread_count, last_message, last_message_time
		)
		VALUES ($1, $2, $3, $4, $5, CASE WHEN $6::boolean THEN 1 ELSE 0 END, $7, $8)
		ON CONFLICT (user_id, chat_id) DO UPDATE SET
			name = COALESCE(chats.name, EXCLUDED.name),
			phone_number = COALESCE(chats.phone_number, EXCLUDED.phone_number),
			unread_count = chats.unread_count + CASE WHEN $6::boolean THEN 1 ELSE 0 END,
			last_message = CASE
				WHEN chats.last_message_time IS NULL OR EXCLUDED.last_message_time >= chats.last_message_time
				THEN EXCLUDED.last_message
				ELSE chats.last_message
			END,
			last_message_time = GREATEST(chats.last_message_time, EXCLUDED.last_message_time),
			updated_at = NOW()
	`,
		params.UserID, params.ChatID, nullIfEmpty(params.Name), nullIfEmpty(params.PhoneNumber),
		params.IsGroup, params.IncrementUnread, params.LastMessage, params.LastMessageTime,
	)
	return err
}

func (r *chatRepo) SetArchived(ctx context.Context, userID, chatID string, archived bool) (*model.Chat, error) {
	var chat model.Chat
	err := r.db.GetContext(ctx, &chat, `
		UPDATE chats SET is_archived = $3, updated_at = NOW()
		WHERE user_id = $1 AND chat_id = $2
		RETURNING *
	`, userID, chatID, archived)
	return HandleNotFound(&chat, err)
}

func (r *chatRepo) SetMuted(ctx context.Context, userID, chatID string, muted bool) (*model.Chat, error) {
	var chat model.Chat
	err := r.db.GetContext(ctx, &chat, `
		UPDATE chats SET is_muted = $3, updated_at = NOW()
		WHERE user_id = $1 AND chat_id = $2
		RETURNING *
	`, userID, chatID, muted)
	return HandleNotFound(&chat, err)
}
