package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uni-enrollment-api/internal/models"
)

func TestCreateNotification(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectExec("INSERT INTO notifications .* ON CONFLICT \\(id\\) DO NOTHING").WillReturnResult(sqlmock.NewResult(1, 1))

	n := &models.Notification{UserID: "u-1", Type: models.NotificationTypeEnrollmentStatus, Data: types.JSONText(`{"status":"approved"}`)}
	require.NoError(t, repo.Create(context.Background(), n))
	assert.NotEmpty(t, n.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListNotificationsUnreadOnly(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, type, data, read_at, created_at FROM notifications WHERE user_id = $1 AND read_at IS NULL ORDER BY created_at DESC LIMIT 10 OFFSET 10")).
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "type", "data", "read_at", "created_at"}).
			AddRow("n-1", "u-1", "enrollment_status", []byte(`{"status":"approved","course":"Algorithms"}`), nil, now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read_at IS NULL")).
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	list, total, err := repo.ListByUser(context.Background(), "u-1", models.NotificationFilter{UnreadOnly: true, Page: 2, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 11, total)
	assert.Nil(t, list[0].ReadAt)
	assert.JSONEq(t, `{"status":"approved","course":"Algorithms"}`, list[0].Data.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkNotificationReadScopedToOwner(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	query := regexp.QuoteMeta("UPDATE notifications SET read_at = COALESCE(read_at, $3) WHERE id = $1 AND user_id = $2")
	mock.ExpectExec(query).WithArgs("n-1", "u-1", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).WithArgs("n-1", "u-2", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.MarkRead(context.Background(), "n-1", "u-1", time.Now()))
	assert.ErrorIs(t, repo.MarkRead(context.Background(), "n-1", "u-2", time.Now()), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
