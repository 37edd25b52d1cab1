package service

import (
	"context"
	"strings"

	"github.com/wabridge/bridge-server-go/internal/config"
	apperrors "github.com/wabridge/bridge-server-go/internal/errors"
	"github.com/wabridge/bridge-server-go/internal/model"
	"github.com/wabridge/bridge-server-go/internal/repository"
)

// MessageService serves stored message history.
type MessageService struct {
	messages repository.MessageRepository
}

func NewMessageService(messages repository.MessageRepository) *MessageService {
	return &MessageService{messages: messages}
}

// History returns the chat's messages oldest first, capped at 100.
func (s *MessageService) History(ctx context.Context, userID, chatID string) ([]model.Message, error) {
	msgs, err := s.messages.ListByChat(ctx, userID, chatID, config.MessageHistoryLimit)
	if err != nil {
		return nil, storeError(err)
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	return msgs, nil
}

// Search matches content case-insensitively, newest first, capped at 50.
func (s *MessageService) Search(ctx context.Context, userID, query string) ([]model.Message, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.MissingRequired("query")
	}
	msgs, err := s.messages.Search(ctx, userID, query, config.MessageSearchLimit)
	if err != nil {
		return nil, storeError(err)
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	return msgs, nil
}
