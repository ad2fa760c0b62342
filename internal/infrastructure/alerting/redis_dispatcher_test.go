package alerting

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/globegenius/backend/internal/application/alert"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockedDispatcher(t *testing.T) (*RedisDispatcher, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	return NewRedisDispatcher(nil, gormDB, zap.NewNop()), mock
}

func TestRedisDispatcher_DigestRecipients(t *testing.T) {
	t.Run("daily kind reads the daily subscription column", func(t *testing.T) {
		d, mock := newMockedDispatcher(t)

		ids := []uuid.UUID{uuid.New(), uuid.New()}
		rows := sqlmock.NewRows([]string{"user_id"}).
			AddRow(ids[0].String()).
			AddRow(ids[1].String())
		mock.ExpectQuery(`SELECT user_id FROM alert_preferences WHERE daily_digest = true`).
			WillReturnRows(rows)

		got, err := d.DigestRecipients(context.Background(), alert.DigestDaily)
		require.NoError(t, err)
		assert.Equal(t, ids, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("weekly kind reads the weekly subscription column", func(t *testing.T) {
		d, mock := newMockedDispatcher(t)

		id := uuid.New()
		mock.ExpectQuery(`SELECT user_id FROM alert_preferences WHERE weekly_digest = true`).
			WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(id.String()))

		got, err := d.DigestRecipients(context.Background(), alert.DigestWeekly)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{id}, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query failure surfaces with the digest kind", func(t *testing.T) {
		d, mock := newMockedDispatcher(t)

		mock.ExpectQuery(`SELECT user_id FROM alert_preferences`).
			WillReturnError(assert.AnError)

		_, err := d.DigestRecipients(context.Background(), alert.DigestWeekly)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "weekly")
	})
}
