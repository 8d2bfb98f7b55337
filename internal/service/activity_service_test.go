package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-fees-api/internal/models"
)

type mockAuditRepo struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (m *mockAuditRepo) Create(ctx context.Context, entry *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *mockAuditRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func TestActivityServicePersistsEntries(t *testing.T) {
	repo := &mockAuditRepo{}
	svc := NewActivityService(repo, nil, 1, 4, true)
	svc.Start(context.Background())
	defer svc.Stop()

	actor := "admin"
	svc.Record(ActivityEntry{
		ActorID:  &actor,
		Action:   models.AuditActionRemindersRun,
		Resource: "notifications",
		Detail:   map[string]interface{}{"created": 2},
	})

	require.Eventually(t, func() bool { return repo.count() == 1 }, time.Second, 10*time.Millisecond)
	repo.mu.Lock()
	defer repo.mu.Unlock()
	entry := repo.entries[0]
	assert.Equal(t, models.AuditActionRemindersRun, entry.Action)
	assert.Equal(t, "admin", *entry.ActorID)
	assert.NotEmpty(t, entry.Detail)
}

func TestActivityServiceDisabledIsNoop(t *testing.T) {
	repo := &mockAuditRepo{}
	svc := NewActivityService(repo, nil, 1, 4, false)
	svc.Start(context.Background())
	svc.Record(ActivityEntry{Action: models.AuditActionBalanceCreate, Resource: "balances"})
	svc.Stop()

	assert.Equal(t, 0, repo.count())
}
