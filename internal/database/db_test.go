package database

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	return New(sqlx.NewDb(raw, "postgres")), mock
}

func TestWithTx(t *testing.T) {
	ctx := context.Background()

	t.Run("commits on success", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE chats").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := db.WithTx(ctx, func(tx *sqlx.Tx) error {
			_, err := tx.ExecContext(ctx, "UPDATE chats SET unread_count = 0")
			return err
		})

		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		boom := errors.New("boom")
		err := db.WithTx(ctx, func(tx *sqlx.Tx) error { return boom })

		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMigrationSource(t *testing.T) {
	src, err := migrationSource()
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)

	up, name, err := src.ReadUp(first)
	require.NoError(t, err)
	defer up.Close()
	assert.Equal(t, "init", name)

	body, err := io.ReadAll(up)
	require.NoError(t, err)
	assert.Contains(t, string(body), "UNIQUE (user_id, chat_id)")
	assert.Contains(t, string(body), "UNIQUE (user_id, message_id)")

	down, _, err := src.ReadDown(first)
	require.NoError(t, err)
	down.Close()

	_, err = src.Next(first)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestMigrateFailsWhenDatabaseRejects(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT CURRENT_DATABASE").WillReturnError(errors.New("permission denied"))

	_, err := db.Migrate(context.Background())
	assert.Error(t, err)
}

func TestPing(t *testing.T) {
	raw, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer raw.Close()
	db := New(sqlx.NewDb(raw, "postgres"))

	mock.ExpectPing()
	assert.NoError(t, db.Ping(context.Background()))

	down := errors.New("connection refused")
	mock.ExpectPing().WillReturnError(down)
	assert.ErrorIs(t, db.Ping(context.Background()), down)

	assert.NoError(t, mock.ExpectationsWereMet())
}
