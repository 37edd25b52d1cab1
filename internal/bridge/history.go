package bridge

import (
	"context"
	"strings"

	"go.mau.fi/whatsmeow/types"

	"github.com/wabridge/bridge-server-go/internal/model"
	"github.com/wabridge/bridge-server-go/internal/repository"
	"github.com/wabridge/bridge-server-go/internal/whatsapp"
)

type storeHistory struct {
	chats    repository.ChatRepository
	messages repository.MessageRepository
}

// NewHistory reads the persisted mirror back as client-side chats and messages.
func NewHistory(chats repository.ChatRepository, messages repository.MessageRepository) whatsapp.History {
	return &storeHistory{chats: chats, messages: messages}
}

func (h *storeHistory) RecentChats(ctx context.Context, userID string, limit int) ([]whatsapp.Chat, error) {
	rows, err := h.chats.ListByUser(ctx, userID, limit, 0)
	if err != nil {
		return nil, err
	}
	out := make([]whatsapp.Chat, 0, len(rows))
	for _, row := range rows {
		out = append(out, chatFromRow(row))
	}
	return out, nil
}

func (h *storeHistory) RecentMessages(ctx context.Context, userID, chatID string, limit int) ([]whatsapp.Message, error) {
	rows, err := h.messages.RecentByChat(ctx, userID, chatID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]whatsapp.Message, 0, len(rows))
	for _, row := range rows {
		out = append(out, messageFromRow(row))
	}
	return out, nil
}

func chatFromRow(row model.Chat) whatsapp.Chat {
	c := whatsapp.Chat{
		ID:          row.ChatID,
		Name:        deref(row.Name),
		PhoneNumber: deref(row.PhoneNumber),
		IsGroup:     row.IsGroup,
		IsArchived:  row.IsArchived,
		IsMuted:     row.IsMuted,
		UnreadCount: row.UnreadCount,
	}
	if row.LastMessage != nil && row.LastMessageTime != nil {
		c.LastMessage = &whatsapp.LastMessage{
			Body:      *row.LastMessage,
			Timestamp: row.LastMessageTime.Unix(),
		}
	}
	return c
}

// messageFromRow rebuilds what the mirror keeps. The sender address of an
// incoming group message is derived from the stored number.
func messageFromRow(row model.Message) whatsapp.Message {
	isGroup := strings.HasSuffix(row.ChatID, "@"+types.GroupServer)
	m := whatsapp.Message{
		ID:        row.MessageID,
		ChatID:    row.ChatID,
		Body:      deref(row.Content),
		FromMe:    row.FromMe,
		Timestamp: row.Timestamp,
		Type:      row.Type,
		Ack:       model.AckFromStatus(row.Status),
		IsGroup:   isGroup,
		Contact: whatsapp.Contact{
			Name:   deref(row.FromName),
			Number: deref(row.FromNumber),
		},
	}
	switch {
	case row.FromMe:
		m.To = row.ChatID
	case isGroup:
		m.From = row.ChatID
		if m.Contact.Number != "" {
			m.Author = m.Contact.Number + "@" + types.DefaultUserServer
		}
	default:
		m.From = row.ChatID
	}
	return m
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
