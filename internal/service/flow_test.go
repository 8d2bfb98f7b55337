package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-fees-api/internal/models"
	"github.com/noah-isme/sma-fees-api/internal/repository"
	"github.com/noah-isme/sma-fees-api/pkg/config"
)

// flowStore is a shared in-memory backend so the issuance, payment and
// reminder services can be chained against one state.
type flowStore struct {
	balances      map[string]*models.Balance
	order         []string
	payments      []*models.Payment
	notifications []models.Notification
}

func newFlowStore() *flowStore {
	return &flowStore{balances: make(map[string]*models.Balance)}
}

func (s *flowStore) BulkCreate(ctx context.Context, balances []models.Balance) error {
	for i := range balances {
		b := balances[i]
		b.ID = fmt.Sprintf("bal-%d", len(s.order)+1)
		s.balances[b.ID] = &b
		s.order = append(s.order, b.ID)
	}
	return nil
}

func (s *flowStore) FindByIDs(ctx context.Context, ids []string) ([]models.Balance, error) {
	var out []models.Balance
	for _, id := range ids {
		if b, ok := s.balances[id]; ok {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (s *flowStore) Settle(ctx context.Context, payment *models.Payment) error {
	for _, id := range payment.BalanceIDs {
		b, ok := s.balances[id]
		if !ok || b.Status != models.BalanceStatusPending {
			return repository.ErrNotPayable
		}
	}
	for _, id := range payment.BalanceIDs {
		s.balances[id].Status = models.BalanceStatusPaid
	}
	payment.ID = fmt.Sprintf("pay-%d", len(s.payments)+1)
	payment.Status = models.PaymentStatusCompleted
	s.payments = append(s.payments, payment)
	return nil
}

func (s *flowStore) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	for _, p := range s.payments {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, errors.New("not found")
}

func (s *flowStore) List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error) {
	return nil, 0, nil
}

func (s *flowStore) ListPendingDue(ctx context.Context, requireDueDate bool, limit int) ([]models.PendingDue, error) {
	var out []models.PendingDue
	for _, id := range s.order {
		b := s.balances[id]
		if b.Status != models.BalanceStatusPending {
			continue
		}
		if requireDueDate && b.DueDate == nil {
			continue
		}
		out = append(out, models.PendingDue{
			BalanceID: b.ID,
			StudentID: b.StudentID,
			Type:      b.Type,
			Amount:    b.Amount,
			DueDate:   b.DueDate,
		})
	}
	return out, nil
}

func (s *flowStore) BatchCreate(ctx context.Context, notifications []models.Notification) (int, error) {
	s.notifications = append(s.notifications, notifications...)
	return len(notifications), nil
}

func TestFeeLifecycleAcrossServices(t *testing.T) {
	store := newFlowStore()
	issuance := NewIssuanceService(store, knownStudents("stu-1", "stu-2"), nil, nil, nil, nil, nil)
	payments := NewPaymentService(store, store, nil, nil, nil, config.PaymentsConfig{}, nil, nil)
	reminders := NewReminderService(store, store, nil, nil, config.RemindersConfig{DaysThreshold: 7, IncludeOverdue: true}, nil)

	issued, err := issuance.IssueFees(context.Background(), IssueFeesRequest{
		StudentIDs: []string{"stu-1", "stu-2"},
		Fee: FeeTemplateRequest{
			Type:        "TUITION",
			Description: "Quarter 2 tuition",
			Amount:      decimal.NewFromInt(15000),
			DueDate:     futureDate(10),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, issued.Count)
	require.Len(t, store.order, 2)

	paid := store.balances[store.order[0]]
	require.Equal(t, "stu-1", paid.StudentID)

	result, err := payments.Process(context.Background(), ProcessPaymentRequest{
		BalanceID:     paid.ID,
		PaymentMethod: "gcash",
	})
	require.NoError(t, err)
	assert.Equal(t, string(models.PaymentStatusCompleted), result.Status)
	assert.False(t, result.IsGroup)
	assert.True(t, result.Amount.Equal(decimal.NewFromInt(15000)))
	require.Len(t, store.payments, 1)
	assert.Equal(t, "gcash", store.payments[0].PaymentMethod)
	assert.Equal(t, models.BalanceStatusPaid, paid.Status)
	assert.Equal(t, models.BalanceStatusPending, store.balances[store.order[1]].Status)

	// stu-2's balance is still 10 days out, beyond the 7-day threshold.
	run, err := reminders.Run(context.Background(), ReminderRunRequest{})
	require.NoError(t, err)
	assert.Equal(t, 0, run.ReminderCount)
	assert.Empty(t, store.notifications)
}
