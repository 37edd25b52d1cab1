package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/wabridge/bridge-server-go/internal/database"
	"github.com/wabridge/bridge-server-go/internal/model"
	"github.com/wabridge/bridge-server-go/internal/repository"
	"github.com/wabridge/bridge-server-go/internal/whatsapp"
)

// Store is the persistence side of the bridge.
type Store interface {
	MarkConnecting(ctx context.Context, userID string) error
	SetQRCode(ctx context.Context, userID, qrCode string) error
	MarkConnected(ctx context.Context, userID, phoneNumber string) error
	MarkDisconnected(ctx context.Context, userID string) error
	MarkFailed(ctx context.Context, userID string) error
	// SaveMessage upserts the message and records it on its chat.
	SaveMessage(ctx context.Context, userID string, msg whatsapp.Message, countUnread bool) error
	SaveChat(ctx context.Context, userID string, chat whatsapp.Chat) error
	UpdateMessageStatus(ctx context.Context, userID string, messageIDs []string, status model.MessageStatus) error
	// SetChatFlags applies archive or mute changes to an already stored chat.
	SetChatFlags(ctx context.Context, userID, chatID string, archived, muted *bool) error
}

type repoStore struct {
	db       *database.DB
	sessions repository.SessionRepository
	chats    repository.ChatRepository
	messages repository.MessageRepository
}

func NewStore(
	db *database.DB,
	sessions repository.SessionRepository,
	chats repository.ChatRepository,
	messages repository.MessageRepository,
) Store {
	return &repoStore{db: db, sessions: sessions, chats: chats, messages: messages}
}

func (s *repoStore) MarkConnecting(ctx context.Context, userID string) error {
	return s.sessions.MarkConnecting(ctx, userID)
}

func (s *repoStore) SetQRCode(ctx context.Context, userID, qrCode string) error {
	return s.sessions.SetQRCode(ctx, userID, qrCode)
}

func (s *repoStore) MarkConnected(ctx context.Context, userID, phoneNumber string) error {
	return s.sessions.MarkConnected(ctx, userID, phoneNumber)
}

func (s *repoStore) MarkDisconnected(ctx context.Context, userID string) error {
	return s.sessions.MarkDisconnected(ctx, userID)
}

func (s *repoStore) MarkFailed(ctx context.Context, userID string) error {
	return s.sessions.MarkFailed(ctx, userID)
}

func (s *repoStore) SaveMessage(ctx context.Context, userID string, msg whatsapp.Message, countUnread bool) error {
	return s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.messages.WithTx(tx).Upsert(ctx, messageParams(userID, msg)); err != nil {
			return fmt.Errorf("upsert message: %w", err)
		}

		touch := model.TouchChatParams{
			UserID:          userID,
			ChatID:          msg.ChatID,
			IsGroup:         msg.IsGroup,
			LastMessage:     msg.Body,
			LastMessageTime: time.Unix(msg.Timestamp, 0).UTC(),
			IncrementUnread: countUnread && !msg.FromMe,
		}
		if !msg.FromMe && !msg.IsGroup {
			touch.Name = msg.Contact.Name
			touch.PhoneNumber = msg.Contact.Number
		}
		if err := s.chats.WithTx(tx).Touch(ctx, touch); err != nil {
			return fmt.Errorf("touch chat: %w", err)
		}
		return nil
	})
}

func (s *repoStore) SaveChat(ctx context.Context, userID string, chat whatsapp.Chat) error {
	params := model.UpsertChatParams{
		UserID:      userID,
		ChatID:      chat.ID,
		Name:        chat.Name,
		PhoneNumber: chat.PhoneNumber,
		IsGroup:     chat.IsGroup,
		IsArchived:  chat.IsArchived,
		IsMuted:     chat.IsMuted,
		UnreadCount: chat.UnreadCount,
	}
	if last := chat.LastMessage; last != nil {
		body := last.Body
		at := time.Unix(last.Timestamp, 0).UTC()
		params.LastMessage = &body
		params.LastMessageTime = &at
	}
	return s.chats.Upsert(ctx, params)
}

func (s *repoStore) UpdateMessageStatus(ctx context.Context, userID string, messageIDs []string, status model.MessageStatus) error {
	_, err := s.messages.UpdateStatus(ctx, userID, messageIDs, status)
	return err
}

func (s *repoStore) SetChatFlags(ctx context.Context, userID, chatID string, archived, muted *bool) error {
	if archived != nil {
		if _, err := s.chats.SetArchived(ctx, userID, chatID, *archived); err != nil {
			return err
		}
	}
	if muted != nil {
		if _, err := s.chats.SetMuted(ctx, userID, chatID, *muted); err != nil {
			return err
		}
	}
	return nil
}

func messageParams(userID string, msg whatsapp.Message) model.UpsertMessageParams {
	return model.UpsertMessageParams{
		UserID:     userID,
		ChatID:     msg.ChatID,
		MessageID:  msg.ID,
		Content:    msg.Body,
		FromMe:     msg.FromMe,
		FromName:   msg.Contact.Name,
		FromNumber: msg.Contact.Number,
		Type:       msg.Type,
		Timestamp:  msg.Timestamp,
		Status:     model.StatusFromAck(msg.Ack),
	}
}
