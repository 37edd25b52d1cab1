package service

import (
	"context"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/wabridge/bridge-server-go/internal/errors"
	"github.com/wabridge/bridge-server-go/internal/model"
	"github.com/wabridge/bridge-server-go/internal/repository"
)

// mockChatRepo keeps chats per user so user scoping is observable.
type mockChatRepo struct {
	chats   map[string]map[string]*model.Chat
	listErr error
}

func newMockChatRepo() *mockChatRepo {
	return &mockChatRepo{chats: make(map[string]map[string]*model.Chat)}
}

func (m *mockChatRepo) put(userID, chatID string) {
	if m.chats[userID] == nil {
		m.chats[userID] = make(map[string]*model.Chat)
	}
	m.chats[userID][chatID] = &model.Chat{UserID: userID, ChatID: chatID}
}

func (m *mockChatRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]model.Chat, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []model.Chat
	for _, c := range m.chats[userID] {
		out = append(out, *c)
	}
	return out, nil
}

func (m *mockChatRepo) FindByChatID(ctx context.Context, userID, chatID string) (*model.Chat, error) {
	if c, ok := m.chats[userID][chatID]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (m *mockChatRepo) Upsert(ctx context.Context, params model.UpsertChatParams) error { return nil }

func (m *mockChatRepo) Touch(ctx context.Context, params model.TouchChatParams) error { return nil }

func (m *mockChatRepo) SetArchived(ctx context.Context, userID, chatID string, archived bool) (*model.Chat, error) {
	c, ok := m.chats[userID][chatID]
	if !ok {
		return nil, nil
	}
	c.IsArchived = archived
	cp := *c
	return &cp, nil
}

func (m *mockChatRepo) SetMuted(ctx context.Context, userID, chatID string, muted bool) (*model.Chat, error) {
	c, ok := m.chats[userID][chatID]
	if !ok {
		return nil, nil
	}
	c.IsMuted = muted
	cp := *c
	return &cp, nil
}

func (m *mockChatRepo) WithTx(tx *sqlx.Tx) repository.ChatRepository { return m }

func TestChatService(t *testing.T) {
	ctx := context.Background()
	chatID := "111@s.whatsapp.net"

	t.Run("archive is visible on get and scoped to the user", func(t *testing.T) {
		repo := newMockChatRepo()
		repo.put("u1", chatID)
		repo.put("u2", chatID)
		svc := NewChatService(repo)

		updated, err := svc.SetArchived(ctx, "u1", chatID, true)
		require.NoError(t, err)
		assert.True(t, updated.IsArchived)

		mine, err := svc.Get(ctx, "u1", chatID)
		require.NoError(t, err)
		assert.True(t, mine.IsArchived)

		theirs, err := svc.Get(ctx, "u2", chatID)
		require.NoError(t, err)
		assert.False(t, theirs.IsArchived)
	})

	t.Run("mute", func(t *testing.T) {
		repo := newMockChatRepo()
		repo.put("u1", chatID)
		svc := NewChatService(repo)

		updated, err := svc.SetMuted(ctx, "u1", chatID, true)
		require.NoError(t, err)
		assert.True(t, updated.IsMuted)
	})

	t.Run("missing chat is not found", func(t *testing.T) {
		svc := NewChatService(newMockChatRepo())

		_, err := svc.Get(ctx, "u1", chatID)
		assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))

		_, err = svc.SetArchived(ctx, "u1", chatID, true)
		assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))

		_, err = svc.SetMuted(ctx, "u1", chatID, true)
		assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
	})

	t.Run("list never returns nil", func(t *testing.T) {
		svc := NewChatService(newMockChatRepo())
		chats, err := svc.List(ctx, "u1", 0, 0)
		require.NoError(t, err)
		assert.NotNil(t, chats)
		assert.Empty(t, chats)
	})

	t.Run("store failure keeps its message", func(t *testing.T) {
		repo := newMockChatRepo()
		repo.listErr = errors.New("permission denied for table chats")
		svc := NewChatService(repo)

		_, err := svc.List(ctx, "u1", 0, 0)
		appErr, ok := apperrors.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrCodeStore, appErr.Code)
		assert.Equal(t, "permission denied for table chats", appErr.Message)
	})
}
