package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/wabridge/bridge-server-go/internal/database"
	"github.com/wabridge/bridge-server-go/internal/model"
)

type MessageRepository interface {
	Upsert(ctx context.Context, params model.UpsertMessageParams) error
	UpdateStatus(ctx context.Context, userID string, messageIDs []string, status model.MessageStatus) (int64, error)
	// ListByChat returns the first limit messages of a chat, oldest first.
	ListByChat(ctx context.Context, userID, chatID string, limit int) ([]model.Message, error)
	// RecentByChat returns the newest limit messages of a chat, oldest first.
	// A zero limit returns every row.
	RecentByChat(ctx context.Context, userID, chatID string, limit int) ([]model.Message, error)
	// Search matches content case-insensitively, newest first.
	Search(ctx context.Context, userID, query string, limit int) ([]model.Message, error)
	WithTx(tx *sqlx.Tx) MessageRepository
}

type messageRepo struct {
	db database.DBTX
}

func NewMessageRepository(db *sqlx.DB) MessageRepository {
	return &messageRepo{db: db}
}

func (r *messageRepo) WithTx(tx *sqlx.Tx) MessageRepository {
	return &messageRepo{db: tx}
}

func (r *messageRepo) Upsert(ctx context.Context, params model.UpsertMessageParams) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (
			user_id, chat_id, message_id, content, from_me, from_name, from_number,
			type, timestamp, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id, message_id) DO UPDATE SET
			chat_id = EXCLUDED.chat_id,
			content = EXCLUDED.content,
			from_me = EXCLUDED.from_me,
			from_name = COALESCE(EXCLUDED.from_name, messages.from_name),
			from_number = COALESCE(EXCLUDED.from_number, messages.from_number),
			type = EXCLUDED.type,
			timestamp = EXCLUDED.timestamp,
			status = EXCLUDED.status,
			updated_at = NOW()
	`,
		params.UserID, params.ChatID, params.MessageID, params.Content, params.FromMe,
		nullIfEmpty(params.FromName), nullIfEmpty(params.FromNumber),
		params.Type, params.Timestamp, params.Status,
	)
	return err
}

func (r *messageRepo) UpdateStatus(ctx context.Context, userID string, messageIDs []string, status model.MessageStatus) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE messages SET status = $3, updated_at = NOW()
		WHERE user_id = $1 AND message_id = ANY($2)
	`, userID, pq.Array(messageIDs), status)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *messageRepo) ListByChat(ctx context.Context, userID, chatID string, limit int) ([]model.Message, error) {
	messages := []model.Message{}
	err := r.db.SelectContext(ctx, &messages, `
		SELECT * FROM messages
		WHERE user_id = $1 AND chat_id = $2
		ORDER BY timestamp ASC, id ASC
		LIMIT $3
	`, userID, chatID, limit)
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *messageRepo) RecentByChat(ctx context.Context, userID, chatID string, limit int) ([]model.Message, error) {
	messages := []model.Message{}
	err := r.db.SelectContext(ctx, &messages, `
		SELECT * FROM (
			SELECT * FROM messages
			WHERE user_id = $1 AND chat_id = $2
			ORDER BY timestamp DESC, id DESC
			LIMIT NULLIF($3::int, 0)
		) recent
		ORDER BY timestamp ASC, id ASC
	`, userID, chatID, limit)
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *messageRepo) Search(ctx context.Context, userID, query string, limit int) ([]model.Message, error) {
	messages := []model.Message{}
	err := r.db.SelectContext(ctx, &messages, `
		SELECT * FROM messages
		WHERE user_id = $1 AND content ILIKE '%' || $2 || '%' ESCAPE '\'
		ORDER BY timestamp DESC, id DESC
		LIMIT $3
	`, userID, escapeLike(query), limit)
	if err != nil {
		return nil, err
	}
	return messages, nil
}
