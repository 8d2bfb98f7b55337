package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-fees-api/internal/models"
	"github.com/noah-isme/sma-fees-api/internal/repository"
	appErrors "github.com/noah-isme/sma-fees-api/pkg/errors"
)

type mockBalanceRepo struct {
	balances  map[string]models.Balance
	cancelErr error
}

func (m *mockBalanceRepo) Create(ctx context.Context, balance *models.Balance) error {
	if m.balances == nil {
		m.balances = make(map[string]models.Balance)
	}
	if balance.ID == "" {
		balance.ID = "bal-new"
	}
	m.balances[balance.ID] = *balance
	return nil
}

func (m *mockBalanceRepo) FindByID(ctx context.Context, id string) (*models.Balance, error) {
	if b, ok := m.balances[id]; ok {
		return &b, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockBalanceRepo) List(ctx context.Context, filter models.BalanceFilter) ([]models.Balance, int, error) {
	var out []models.Balance
	for _, b := range m.balances {
		out = append(out, b)
	}
	return out, len(out), nil
}

func (m *mockBalanceRepo) Cancel(ctx context.Context, id string) error {
	if m.cancelErr != nil {
		return m.cancelErr
	}
	b, ok := m.balances[id]
	if !ok || b.Status != models.BalanceStatusPending {
		return repository.ErrNotCancellable
	}
	b.Status = models.BalanceStatusCancelled
	m.balances[id] = b
	return nil
}

type mockBalanceStudentRepo struct {
	students map[string]models.Student
}

func (m *mockBalanceStudentRepo) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := m.students[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func TestBalanceServiceCreate(t *testing.T) {
	repo := &mockBalanceRepo{}
	students := &mockBalanceStudentRepo{students: map[string]models.Student{"stu-1": {ID: "stu-1"}}}
	svc := NewBalanceService(repo, students, nil, nil, nil, nil)

	balance, err := svc.Create(context.Background(), CreateBalanceRequest{
		StudentID:   "stu-1",
		Type:        "MISC",
		Description: "Laboratory fee",
		Amount:      decimal.NewFromInt(350),
		DueDate:     "2026-10-15",
	})
	require.NoError(t, err)
	assert.Equal(t, models.BalanceStatusPending, balance.Status)
	require.NotNil(t, balance.DueDate)
}

func TestBalanceServiceCreateUnknownStudent(t *testing.T) {
	svc := NewBalanceService(&mockBalanceRepo{}, &mockBalanceStudentRepo{}, nil, nil, nil, nil)

	_, err := svc.Create(context.Background(), CreateBalanceRequest{
		StudentID:   "ghost",
		Type:        "MISC",
		Description: "Laboratory fee",
		Amount:      decimal.NewFromInt(350),
	})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestBalanceServiceCreateRejectsNonPositiveAmount(t *testing.T) {
	students := &mockBalanceStudentRepo{students: map[string]models.Student{"stu-1": {ID: "stu-1"}}}
	svc := NewBalanceService(&mockBalanceRepo{}, students, nil, nil, nil, nil)

	_, err := svc.Create(context.Background(), CreateBalanceRequest{
		StudentID:   "stu-1",
		Type:        "MISC",
		Description: "Laboratory fee",
		Amount:      decimal.NewFromInt(-5),
	})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestBalanceServiceCancelOnlyPending(t *testing.T) {
	repo := &mockBalanceRepo{balances: map[string]models.Balance{
		"bal-1": {ID: "bal-1", Status: models.BalanceStatusPending},
		"bal-2": {ID: "bal-2", Status: models.BalanceStatusPaid},
	}}
	svc := NewBalanceService(repo, &mockBalanceStudentRepo{}, nil, nil, nil, nil)

	balance, err := svc.Cancel(context.Background(), "bal-1", nil, "")
	require.NoError(t, err)
	assert.Equal(t, models.BalanceStatusCancelled, balance.Status)

	_, err = svc.Cancel(context.Background(), "bal-2", nil, "")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestBalanceServiceListRejectsUnknownStatus(t *testing.T) {
	svc := NewBalanceService(&mockBalanceRepo{}, &mockBalanceStudentRepo{}, nil, nil, nil, nil)

	_, _, err := svc.List(context.Background(), models.BalanceFilter{Status: "SORT_OF_PAID"})
	require.Error(t, err)
}
