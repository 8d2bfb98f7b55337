package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-fees-api/internal/models"
)

func TestNotificationRepositoryBatchCreateCountsInserted(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO notifications").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("not-1"))
	mock.ExpectQuery("INSERT INTO notifications").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("not-2"))
	mock.ExpectCommit()

	batch := []models.Notification{
		{StudentID: "stu-1", BalanceID: "bal-1", Kind: models.NotificationKindUpcoming, Title: "Upcoming fee due", Message: "m", ThresholdBucket: "UPCOMING_7"},
		{StudentID: "stu-2", BalanceID: "bal-2", Kind: models.NotificationKindOverdue, Title: "Overdue fee", Message: "m", ThresholdBucket: "OVERDUE"},
	}
	created, err := repo.BatchCreate(context.Background(), batch)
	require.NoError(t, err)
	require.Equal(t, 2, created)
	require.Equal(t, models.NotificationStatusUnread, batch[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryBatchCreateSkipsExistingBucket(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	// Second insert hits the (balance_id, threshold_bucket) constraint and
	// returns no row, so only the first counts.
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO notifications").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("not-1"))
	mock.ExpectQuery("INSERT INTO notifications").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	batch := []models.Notification{
		{StudentID: "stu-1", BalanceID: "bal-1", Kind: models.NotificationKindUpcoming, Title: "Upcoming fee due", Message: "m", ThresholdBucket: "UPCOMING_7"},
		{StudentID: "stu-1", BalanceID: "bal-2", Kind: models.NotificationKindUpcoming, Title: "Upcoming fee due", Message: "m", ThresholdBucket: "UPCOMING_7"},
	}
	created, err := repo.BatchCreate(context.Background(), batch)
	require.NoError(t, err)
	require.Equal(t, 1, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryMarkRead(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE notifications SET status = $2 WHERE id = $1 AND status = $3")).
		WithArgs("not-1", models.NotificationStatusRead, models.NotificationStatusUnread).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MarkRead(context.Background(), "not-1"))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE notifications SET status = $2 WHERE id = $1 AND status = $3")).
		WithArgs("not-1", models.NotificationStatusRead, models.NotificationStatusUnread).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorIs(t, repo.MarkRead(context.Background(), "not-1"), ErrAlreadyRead)
	require.NoError(t, mock.ExpectationsWereMet())
}
