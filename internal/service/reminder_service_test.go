package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-fees-api/internal/models"
	"github.com/noah-isme/sma-fees-api/pkg/config"
)

type mockReminderBalanceRepo struct {
	pending []models.PendingDue
}

func (m *mockReminderBalanceRepo) ListPendingDue(ctx context.Context, requireDueDate bool, limit int) ([]models.PendingDue, error) {
	if !requireDueDate {
		return m.pending, nil
	}
	var out []models.PendingDue
	for _, p := range m.pending {
		if p.DueDate != nil {
			out = append(out, p)
		}
	}
	return out, nil
}

type mockReminderNotificationRepo struct {
	batches  [][]models.Notification
	existing map[string]bool
}

func (m *mockReminderNotificationRepo) BatchCreate(ctx context.Context, notifications []models.Notification) (int, error) {
	m.batches = append(m.batches, notifications)
	created := 0
	for _, n := range notifications {
		key := n.BalanceID + "|" + n.ThresholdBucket
		if m.existing[key] {
			continue
		}
		if m.existing == nil {
			m.existing = make(map[string]bool)
		}
		m.existing[key] = true
		created++
	}
	return created, nil
}

func newReminderService(pending []models.PendingDue, cfg config.RemindersConfig) (*ReminderService, *mockReminderNotificationRepo) {
	notifications := &mockReminderNotificationRepo{existing: make(map[string]bool)}
	svc := NewReminderService(&mockReminderBalanceRepo{pending: pending}, notifications, nil, nil, cfg, nil)
	svc.now = func() time.Time { return time.Date(2026, 9, 1, 8, 30, 0, 0, time.UTC) }
	return svc, notifications
}

func dueOn(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestReminderServiceClassifiesByDueDate(t *testing.T) {
	pending := []models.PendingDue{
		{BalanceID: "bal-today", StudentID: "s1", Type: "TUITION", Amount: decimal.NewFromInt(1500), DueDate: dueOn(2026, 9, 1)},
		{BalanceID: "bal-soon", StudentID: "s2", Type: "TUITION", Amount: decimal.NewFromInt(1500), DueDate: dueOn(2026, 9, 6)},
		{BalanceID: "bal-edge", StudentID: "s3", Type: "TUITION", Amount: decimal.NewFromInt(1500), DueDate: dueOn(2026, 9, 8)},
		{BalanceID: "bal-far", StudentID: "s4", Type: "TUITION", Amount: decimal.NewFromInt(1500), DueDate: dueOn(2026, 9, 11)},
		{BalanceID: "bal-late", StudentID: "s5", Type: "MISC", Amount: decimal.NewFromInt(250), DueDate: dueOn(2026, 8, 29)},
	}
	svc, notifications := newReminderService(pending, config.RemindersConfig{DaysThreshold: 7, IncludeOverdue: true})

	result, err := svc.Run(context.Background(), ReminderRunRequest{})
	require.NoError(t, err)
	assert.Equal(t, 4, result.ReminderCount)

	require.Len(t, notifications.batches, 1)
	byBalance := make(map[string]models.Notification)
	for _, n := range notifications.batches[0] {
		byBalance[n.BalanceID] = n
	}
	assert.Equal(t, models.NotificationKindUpcoming, byBalance["bal-today"].Kind)
	assert.Equal(t, models.NotificationKindUpcoming, byBalance["bal-soon"].Kind)
	assert.Equal(t, models.NotificationKindUpcoming, byBalance["bal-edge"].Kind)
	assert.Equal(t, models.NotificationKindOverdue, byBalance["bal-late"].Kind)
	assert.NotContains(t, byBalance, "bal-far")

	assert.Equal(t, "UPCOMING_7", byBalance["bal-soon"].ThresholdBucket)
	assert.Equal(t, "OVERDUE", byBalance["bal-late"].ThresholdBucket)
	assert.Contains(t, byBalance["bal-soon"].Message, "1,500")
	assert.Contains(t, byBalance["bal-soon"].Message, "5 day(s)")
	assert.Contains(t, byBalance["bal-late"].Message, "3 day(s) overdue")
}

func TestReminderServiceSkipsOverdueWhenDisabled(t *testing.T) {
	pending := []models.PendingDue{
		{BalanceID: "bal-late", StudentID: "s1", Type: "TUITION", Amount: decimal.NewFromInt(1500), DueDate: dueOn(2026, 8, 20)},
	}
	svc, _ := newReminderService(pending, config.RemindersConfig{DaysThreshold: 7, IncludeOverdue: false})

	result, err := svc.Run(context.Background(), ReminderRunRequest{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.ReminderCount)
}

func TestReminderServiceSendAllIncludesDateless(t *testing.T) {
	pending := []models.PendingDue{
		{BalanceID: "bal-dated", StudentID: "s1", Type: "TUITION", Amount: decimal.NewFromInt(1500), DueDate: dueOn(2026, 12, 1)},
		{BalanceID: "bal-nodate", StudentID: "s2", Type: "MISC", Amount: decimal.NewFromInt(100)},
	}
	sendAll := true
	svc, notifications := newReminderService(pending, config.RemindersConfig{DaysThreshold: 7})

	result, err := svc.Run(context.Background(), ReminderRunRequest{SendAll: &sendAll})
	require.NoError(t, err)
	assert.Equal(t, 2, result.ReminderCount)
	for _, n := range notifications.batches[0] {
		assert.Equal(t, models.NotificationKindUpcoming, n.Kind)
	}
}

func TestReminderServiceRerunEmitsNothingNew(t *testing.T) {
	pending := []models.PendingDue{
		{BalanceID: "bal-1", StudentID: "s1", Type: "TUITION", Amount: decimal.NewFromInt(1500), DueDate: dueOn(2026, 9, 5)},
	}
	svc, _ := newReminderService(pending, config.RemindersConfig{DaysThreshold: 7})

	first, err := svc.Run(context.Background(), ReminderRunRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, first.ReminderCount)

	second, err := svc.Run(context.Background(), ReminderRunRequest{})
	require.NoError(t, err)
	assert.Equal(t, 0, second.ReminderCount)
}

func TestReminderServiceRejectsNegativeThreshold(t *testing.T) {
	svc, _ := newReminderService(nil, config.RemindersConfig{DaysThreshold: 7})

	bad := -1
	_, err := svc.Run(context.Background(), ReminderRunRequest{DaysThreshold: &bad})
	require.Error(t, err)
}

func TestReminderServiceThresholdOverride(t *testing.T) {
	pending := []models.PendingDue{
		{BalanceID: "bal-1", StudentID: "s1", Type: "TUITION", Amount: decimal.NewFromInt(1500), DueDate: dueOn(2026, 9, 11)},
	}
	svc, _ := newReminderService(pending, config.RemindersConfig{DaysThreshold: 7})

	wide := 15
	result, err := svc.Run(context.Background(), ReminderRunRequest{DaysThreshold: &wide})
	require.NoError(t, err)
	assert.Equal(t, 1, result.ReminderCount)
}

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		in   decimal.Decimal
		want string
	}{
		{decimal.NewFromInt(0), "0"},
		{decimal.NewFromInt(950), "950"},
		{decimal.NewFromInt(1500), "1,500"},
		{decimal.NewFromInt(1234567), "1,234,567"},
		{decimal.NewFromFloat(1500.50), "1,500.50"},
		{decimal.NewFromInt(-2500), "-2,500"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, formatAmount(tc.in), tc.in.String())
	}
}
