package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-fees-api/internal/models"
	"github.com/noah-isme/sma-fees-api/internal/repository"
	appErrors "github.com/noah-isme/sma-fees-api/pkg/errors"
)

type notificationRepository interface {
	List(ctx context.Context, filter models.NotificationFilter) ([]models.NotificationDetail, int, error)
	MarkRead(ctx context.Context, id string) error
}

// NotificationService exposes the reminder feed to the external notification
// surface.
type NotificationService struct {
	repo     notificationRepository
	activity *ActivityService
	logger   *zap.Logger
}

// NewNotificationService constructs the notification service.
func NewNotificationService(repo notificationRepository, activity *ActivityService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{repo: repo, activity: activity, logger: logger}
}

// List returns notifications and pagination metadata.
func (s *NotificationService) List(ctx context.Context, filter models.NotificationFilter) ([]models.NotificationDetail, *models.Pagination, error) {
	notifications, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return notifications, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// MarkRead flips one notification from unread to read.
func (s *NotificationService) MarkRead(ctx context.Context, id string, actor *models.JWTClaims, ip string) error {
	if err := s.repo.MarkRead(ctx, id); err != nil {
		if err == repository.ErrAlreadyRead {
			return appErrors.Clone(appErrors.ErrConflict, "notification is not unread")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	if s.activity != nil {
		var actorID *string
		if actor != nil {
			actorID = &actor.UserID
		}
		s.activity.Record(ActivityEntry{
			ActorID:    actorID,
			Action:     models.AuditActionNotificationMarked,
			Resource:   "notifications",
			ResourceID: &id,
			IPAddress:  ip,
		})
	}
	return nil
}
