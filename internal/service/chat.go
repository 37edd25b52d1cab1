package service

import (
	"context"

	apperrors "github.com/wabridge/bridge-server-go/internal/errors"
	"github.com/wabridge/bridge-server-go/internal/model"
	"github.com/wabridge/bridge-server-go/internal/repository"
)

// ChatService serves the stored chat list of a user.
type ChatService struct {
	chats repository.ChatRepository
}

func NewChatService(chats repository.ChatRepository) *ChatService {
	return &ChatService{chats: chats}
}

// List returns chats by recency. A zero limit returns every chat.
func (s *ChatService) List(ctx context.Context, userID string, limit, offset int) ([]model.Chat, error) {
	chats, err := s.chats.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, storeError(err)
	}
	if chats == nil {
		chats = []model.Chat{}
	}
	return chats, nil
}

func (s *ChatService) Get(ctx context.Context, userID, chatID string) (*model.Chat, error) {
	chat, err := s.chats.FindByChatID(ctx, userID, chatID)
	if err != nil {
		return nil, storeError(err)
	}
	if chat == nil {
		return nil, apperrors.NotFound("Chat")
	}
	return chat, nil
}

func (s *ChatService) SetArchived(ctx context.Context, userID, chatID string, archived bool) (*model.Chat, error) {
	chat, err := s.chats.SetArchived(ctx, userID, chatID, archived)
	if err != nil {
		return nil, storeError(err)
	}
	if chat == nil {
		return nil, apperrors.NotFound("Chat")
	}
	return chat, nil
}

func (s *ChatService) SetMuted(ctx context.Context, userID, chatID string, muted bool) (*model.Chat, error) {
	chat, err := s.chats.SetMuted(ctx, userID, chatID, muted)
	if err != nil {
		return nil, storeError(err)
	}
	if chat == nil {
		return nil, apperrors.NotFound("Chat")
	}
	return chat, nil
}

// storeError surfaces a store failure to the caller with its message.
func storeError(err error) error {
	return apperrors.Store(err.Error(), err)
}
