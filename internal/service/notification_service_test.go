package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-fees-api/internal/models"
	"github.com/noah-isme/sma-fees-api/internal/repository"
	appErrors "github.com/noah-isme/sma-fees-api/pkg/errors"
)

type mockNotificationFeedRepo struct {
	items   []models.NotificationDetail
	readErr error
	read    []string
}

func (m *mockNotificationFeedRepo) List(ctx context.Context, filter models.NotificationFilter) ([]models.NotificationDetail, int, error) {
	return m.items, len(m.items), nil
}

func (m *mockNotificationFeedRepo) MarkRead(ctx context.Context, id string) error {
	if m.readErr != nil {
		return m.readErr
	}
	m.read = append(m.read, id)
	return nil
}

func TestNotificationServiceListPaginates(t *testing.T) {
	repo := &mockNotificationFeedRepo{items: []models.NotificationDetail{
		{Notification: models.Notification{ID: "not-1"}},
		{Notification: models.Notification{ID: "not-2"}},
	}}
	svc := NewNotificationService(repo, nil, nil)

	items, pagination, err := svc.List(context.Background(), models.NotificationFilter{})
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, 2, pagination.TotalCount)
	assert.Equal(t, 1, pagination.Page)
}

func TestNotificationServiceMarkReadConflict(t *testing.T) {
	repo := &mockNotificationFeedRepo{readErr: repository.ErrAlreadyRead}
	svc := NewNotificationService(repo, nil, nil)

	err := svc.MarkRead(context.Background(), "not-1", nil, "")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestNotificationServiceMarkReadRecordsActivity(t *testing.T) {
	repo := &mockNotificationFeedRepo{}
	auditRepo := &mockAuditRepo{}
	activity := NewActivityService(auditRepo, nil, 1, 4, true)
	activity.Start(context.Background())
	defer activity.Stop()
	svc := NewNotificationService(repo, activity, nil)

	err := svc.MarkRead(context.Background(), "not-1", &models.JWTClaims{UserID: "usr-1"}, "10.0.0.1")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return auditRepo.count() == 1 }, time.Second, 10*time.Millisecond)
	auditRepo.mu.Lock()
	defer auditRepo.mu.Unlock()
	entry := auditRepo.entries[0]
	assert.Equal(t, models.AuditActionNotificationMarked, entry.Action)
	assert.Equal(t, "usr-1", *entry.ActorID)
	assert.Equal(t, "not-1", *entry.ResourceID)
}
