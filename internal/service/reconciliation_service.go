package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-fees-api/internal/models"
	appErrors "github.com/noah-isme/sma-fees-api/pkg/errors"
)

type reconciliationStudentRepository interface {
	DuplicateGroups(ctx context.Context) ([]models.DuplicateGroup, error)
	MergeDuplicate(ctx context.Context, canonicalID, duplicateID string) error
}

// ReconcileRequest carries caller context for the activity log.
type ReconcileRequest struct {
	Actor *models.JWTClaims `json:"-"`
	IP    string            `json:"-"`
}

// ReconciliationService collapses duplicate student identity records down to
// one canonical record per email. Duplicates arise when out-of-band
// provisioning and billing bookkeeping each create a record for the same
// address.
type ReconciliationService struct {
	students reconciliationStudentRepository
	metrics  *MetricsService
	activity *ActivityService
	logger   *zap.Logger
}

// NewReconciliationService constructs the reconciliation service.
func NewReconciliationService(students reconciliationStudentRepository, metrics *MetricsService, activity *ActivityService, logger *zap.Logger) *ReconciliationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconciliationService{students: students, metrics: metrics, activity: activity, logger: logger}
}

// Reconcile keeps, per email, the record with the latest creation timestamp
// (a record without a timestamp counts as the oldest) and merges the rest
// into it. Each duplicate is repointed and removed in its own transaction, so
// an interrupted run leaves no dangling references and is safe to rerun.
func (s *ReconciliationService) Reconcile(ctx context.Context, req ReconcileRequest) (*models.ReconciliationResult, error) {
	groups, err := s.students.DuplicateGroups(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to group students by email")
	}

	result := &models.ReconciliationResult{RemovedIDs: []string{}}
	for _, group := range groups {
		if len(group.Records) < 2 {
			continue
		}
		// Records arrive newest first with NULL timestamps last, so the
		// head is the canonical record.
		canonical := group.Records[0]
		for _, duplicate := range group.Records[1:] {
			if err := s.students.MergeDuplicate(ctx, canonical.ID, duplicate.ID); err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to merge duplicate student")
			}
			result.RemovedIDs = append(result.RemovedIDs, duplicate.ID)
		}
		result.MergedEmails++
		s.logger.Info("student duplicates merged",
			zap.String("email", group.Email),
			zap.String("canonical_id", canonical.ID),
			zap.Int("removed", len(group.Records)-1),
		)
	}

	s.metrics.AddDuplicatesMerged(len(result.RemovedIDs))
	s.recordActivity(req, result)
	return result, nil
}

func (s *ReconciliationService) recordActivity(req ReconcileRequest, result *models.ReconciliationResult) {
	if s.activity == nil {
		return
	}
	var actorID *string
	if req.Actor != nil {
		actorID = &req.Actor.UserID
	}
	s.activity.Record(ActivityEntry{
		ActorID:   actorID,
		Action:    models.AuditActionStudentsReconcile,
		Resource:  "students",
		Detail:    map[string]interface{}{"merged_emails": result.MergedEmails, "removed_ids": result.RemovedIDs},
		IPAddress: req.IP,
	})
}
