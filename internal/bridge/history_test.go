package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wabridge/bridge-server-go/internal/repository"
	"github.com/wabridge/bridge-server-go/internal/whatsapp"
)

func newMockHistory(t *testing.T) (whatsapp.History, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		raw.Close()
	})
	db := sqlx.NewDb(raw, "postgres")
	return NewHistory(repository.NewChatRepository(db), repository.NewMessageRepository(db)), mock
}

func TestHistoryRecentChats(t *testing.T) {
	history, mock := newMockHistory(t)
	now := time.Now()
	last := time.Unix(1700000000, 0)

	mock.ExpectQuery("SELECT \\* FROM chats").
		WithArgs("u1", 500, 0).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "chat_id", "name", "phone_number", "is_group", "is_archived", "is_muted",
			"unread_count", "last_message", "last_message_time", "created_at", "updated_at",
		}).
			AddRow(1, "u1", "111@s.whatsapp.net", "Alice", "111", false, false, true, 3, "hey", last, now, now).
			AddRow(2, "u1", "123-456@g.us", nil, nil, true, true, false, 0, nil, nil, now, now))

	chats, err := history.RecentChats(context.Background(), "u1", 500)
	require.NoError(t, err)
	require.Len(t, chats, 2)

	assert.Equal(t, whatsapp.Chat{
		ID:          "111@s.whatsapp.net",
		Name:        "Alice",
		PhoneNumber: "111",
		IsMuted:     true,
		UnreadCount: 3,
		LastMessage: &whatsapp.LastMessage{Body: "hey", Timestamp: 1700000000},
	}, chats[0])
	assert.Equal(t, "123-456@g.us", chats[1].ID)
	assert.True(t, chats[1].IsGroup)
	assert.Nil(t, chats[1].LastMessage)
}

func TestHistoryRecentMessages(t *testing.T) {
	history, mock := newMockHistory(t)
	now := time.Now()

	mock.ExpectQuery("SELECT \\* FROM \\(").
		WithArgs("u1", "123-456@g.us", 200).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "chat_id", "message_id", "content", "from_me", "from_name", "from_number",
			"type", "timestamp", "status", "created_at", "updated_at",
		}).
			AddRow(1, "u1", "123-456@g.us", "M1", "hello", false, "Bob", "222", "chat", 1700000000, "delivered", now, now).
			AddRow(2, "u1", "123-456@g.us", "M2", "hi Bob", true, nil, nil, "chat", 1700000100, "read", now, now))

	msgs, err := history.RecentMessages(context.Background(), "u1", "123-456@g.us", 200)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	in := msgs[0]
	assert.Equal(t, "M1", in.ID)
	assert.Equal(t, "123-456@g.us", in.From)
	assert.Equal(t, "222@s.whatsapp.net", in.Author)
	assert.True(t, in.IsGroup)
	assert.Equal(t, whatsapp.AckDelivered, in.Ack)
	assert.Equal(t, whatsapp.Contact{Name: "Bob", Number: "222"}, in.Contact)

	out := msgs[1]
	assert.True(t, out.FromMe)
	assert.Equal(t, "123-456@g.us", out.To)
	assert.Equal(t, whatsapp.AckRead, out.Ack)
}
