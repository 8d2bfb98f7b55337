package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-fees-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestBalanceRepositoryBulkCreateCommitsAll(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBalanceRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO balances").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO balances").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	due := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	balances := []models.Balance{
		{StudentID: "stu-1", Type: "TUITION", Description: "Q2 tuition", Amount: decimal.NewFromInt(1500), DueDate: &due},
		{StudentID: "stu-2", Type: "TUITION", Description: "Q2 tuition", Amount: decimal.NewFromInt(1500), DueDate: &due},
	}
	require.NoError(t, repo.BulkCreate(context.Background(), balances))
	require.NotEmpty(t, balances[0].ID)
	require.Equal(t, models.BalanceStatusPending, balances[1].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBalanceRepositoryBulkCreateRollsBackOnFailure(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBalanceRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO balances").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO balances").WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	balances := []models.Balance{
		{StudentID: "stu-1", Type: "TUITION", Description: "Q2 tuition", Amount: decimal.NewFromInt(1500)},
		{StudentID: "stu-2", Type: "TUITION", Description: "Q2 tuition", Amount: decimal.NewFromInt(1500)},
	}
	require.Error(t, repo.BulkCreate(context.Background(), balances))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBalanceRepositoryCancelGuardsStatus(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBalanceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE balances SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4")).
		WithArgs("bal-1", models.BalanceStatusCancelled, sqlmock.AnyArg(), models.BalanceStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Cancel(context.Background(), "bal-1"))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE balances SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4")).
		WithArgs("bal-2", models.BalanceStatusCancelled, sqlmock.AnyArg(), models.BalanceStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.Cancel(context.Background(), "bal-2")
	require.ErrorIs(t, err, ErrNotCancellable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBalanceRepositoryListPendingDueSkipsDateless(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBalanceRepository(db)

	due := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"balance_id", "student_id", "type", "amount", "due_date"}).
		AddRow("bal-1", "stu-1", "TUITION", "1500", due)
	mock.ExpectQuery(regexp.QuoteMeta("AND b.due_date IS NOT NULL")).
		WithArgs(models.BalanceStatusPending).
		WillReturnRows(rows)

	pending, err := repo.ListPendingDue(context.Background(), true, 500)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "bal-1", pending[0].BalanceID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBalanceRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBalanceRepository(db)

	rows := sqlmock.NewRows([]string{"id", "student_id", "type", "description", "amount", "status", "due_date", "paid_at", "payment_method", "reference_number", "payment_id", "created_at", "updated_at"}).
		AddRow("bal-1", "stu-1", "TUITION", "Q2 tuition", "1500", models.BalanceStatusPending, nil, nil, nil, nil, nil, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("b.student_id = $1 AND b.status = $2")).
		WithArgs("stu-1", models.BalanceStatusPending).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs("stu-1", models.BalanceStatusPending).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	balances, total, err := repo.List(context.Background(), models.BalanceFilter{StudentID: "stu-1", Status: models.BalanceStatusPending})
	require.NoError(t, err)
	require.Len(t, balances, 1)
	require.Equal(t, 1, total)
	require.NoError(t, mock.ExpectationsWereMet())
}
