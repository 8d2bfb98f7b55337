package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-fees-api/internal/models"
	"github.com/noah-isme/sma-fees-api/pkg/jobs"
)

type auditRepository interface {
	Create(ctx context.Context, entry *models.AuditLog) error
}

// ActivityEntry is the event a component hands to the activity log sink.
type ActivityEntry struct {
	ActorID    *string
	Action     string
	Resource   string
	ResourceID *string
	Detail     interface{}
	IPAddress  string
}

// ActivityService is the write-only audit sink. Entries are queued and
// persisted by background workers; a failed write is retried by the queue and
// never surfaces to the caller.
type ActivityService struct {
	repo    auditRepository
	queue   *jobs.Queue
	logger  *zap.Logger
	enabled bool
}

// NewActivityService builds the sink and its worker queue.
func NewActivityService(repo auditRepository, logger *zap.Logger, workers, bufferSize int, enabled bool) *ActivityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ActivityService{repo: repo, logger: logger, enabled: enabled}
	s.queue = jobs.NewQueue("activity-log", s.persist, jobs.QueueConfig{
		Workers:    workers,
		BufferSize: bufferSize,
		Logger:     logger,
	})
	return s
}

// Start launches the queue workers.
func (s *ActivityService) Start(ctx context.Context) {
	if !s.enabled {
		return
	}
	s.queue.Start(ctx)
}

// Stop drains the queue workers.
func (s *ActivityService) Stop() {
	if !s.enabled {
		return
	}
	s.queue.Stop()
}

// Record enqueues one activity entry. Best effort: an entry that cannot be
// queued is logged and dropped, never failing the mutating request that
// produced it.
func (s *ActivityService) Record(entry ActivityEntry) {
	if !s.enabled {
		return
	}
	if err := s.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: entry.Action, Payload: entry}); err != nil {
		s.logger.Warn("activity entry dropped", zap.String("action", entry.Action), zap.Error(err))
	}
}

func (s *ActivityService) persist(ctx context.Context, job jobs.Job) error {
	entry, ok := job.Payload.(ActivityEntry)
	if !ok {
		return fmt.Errorf("unexpected activity payload %T", job.Payload)
	}

	var detail []byte
	if entry.Detail != nil {
		raw, err := json.Marshal(entry.Detail)
		if err != nil {
			return fmt.Errorf("marshal activity detail: %w", err)
		}
		detail = raw
	}

	return s.repo.Create(ctx, &models.AuditLog{
		ID:         job.ID,
		ActorID:    entry.ActorID,
		Action:     entry.Action,
		Resource:   entry.Resource,
		ResourceID: entry.ResourceID,
		Detail:     detail,
		IPAddress:  entry.IPAddress,
	})
}
