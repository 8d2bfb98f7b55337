package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-fees-api/internal/models"
)

func TestStudentRepositoryDuplicateGroupsOrdersNewestFirst(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "email", "full_name", "grade", "strand", "section", "status", "created_at", "updated_at"}).
		AddRow("stu-2", "a@school.edu", "Ana Cruz", "11", "STEM", "A", models.StudentStatusActive, newer, newer).
		AddRow("stu-1", "a@school.edu", "Ana Cruz", "11", "STEM", "A", models.StudentStatusActive, older, older).
		AddRow("stu-3", "a@school.edu", "Ana Cruz", "11", "STEM", "A", models.StudentStatusActive, nil, older).
		AddRow("stu-9", "b@school.edu", "Ben Reyes", "12", "ABM", "B", models.StudentStatusActive, newer, newer).
		AddRow("stu-8", "b@school.edu", "Ben Reyes", "12", "ABM", "B", models.StudentStatusActive, older, older)
	mock.ExpectQuery(regexp.QuoteMeta("HAVING COUNT(*) > 1")).WillReturnRows(rows)

	groups, err := repo.DuplicateGroups(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 2)
	require.Equal(t, "a@school.edu", groups[0].Email)
	require.Len(t, groups[0].Records, 3)
	require.Equal(t, "stu-2", groups[0].Records[0].ID)
	require.Equal(t, "stu-9", groups[1].Records[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryMergeDuplicateRepointsBeforeDelete(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE balances SET student_id = $1 WHERE student_id = $2")).
		WithArgs("stu-keep", "stu-dup").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE payments SET student_id = $1 WHERE student_id = $2")).
		WithArgs("stu-keep", "stu-dup").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE notifications SET student_id = $1 WHERE student_id = $2")).
		WithArgs("stu-keep", "stu-dup").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM students WHERE id = $1")).
		WithArgs("stu-dup").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.MergeDuplicate(context.Background(), "stu-keep", "stu-dup"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryMergeDuplicateRollsBackOnRepointFailure(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE balances SET student_id = $1 WHERE student_id = $2")).
		WithArgs("stu-keep", "stu-dup").
		WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	require.Error(t, repo.MergeDuplicate(context.Background(), "stu-keep", "stu-dup"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryExistsByEmail(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM students WHERE email = $1 LIMIT 1")).
		WithArgs("a@school.edu").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	exists, err := repo.ExistsByEmail(context.Background(), "a@school.edu")
	require.NoError(t, err)
	require.True(t, exists)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM students WHERE email = $1 LIMIT 1")).
		WithArgs("nobody@school.edu").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	exists, err = repo.ExistsByEmail(context.Background(), "nobody@school.edu")
	require.NoError(t, err)
	require.False(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}
