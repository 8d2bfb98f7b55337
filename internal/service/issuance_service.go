package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-fees-api/internal/models"
	"github.com/noah-isme/sma-fees-api/internal/repository"
	appErrors "github.com/noah-isme/sma-fees-api/pkg/errors"
)

const dateLayout = "2006-01-02"

type issuanceBalanceRepository interface {
	BulkCreate(ctx context.Context, balances []models.Balance) error
}

type issuanceStudentRepository interface {
	FindByIDs(ctx context.Context, ids []string) ([]models.Student, error)
}

type idempotencyStore interface {
	Claim(ctx context.Context, kind, token string) (bool, []byte, error)
	Complete(ctx context.Context, kind, token string, payload []byte) error
	Release(ctx context.Context, kind, token string) error
}

// FeeTemplateRequest is the fee applied to every roster entry.
type FeeTemplateRequest struct {
	Type        string          `json:"type" validate:"required"`
	Description string          `json:"description" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
	DueDate     string          `json:"due_date" validate:"required"`
}

// IssueFeesRequest holds the payload for a bulk issuance.
type IssueFeesRequest struct {
	StudentIDs []string           `json:"students" validate:"required,min=1,dive,required"`
	Fee        FeeTemplateRequest `json:"fee"`

	IdempotencyKey string             `json:"-"`
	Actor          *models.JWTClaims  `json:"-"`
	IP             string             `json:"-"`
}

// IssueFeesResult reports a completed bulk issuance.
type IssueFeesResult struct {
	Success   bool      `json:"success"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

// IssuanceService creates many balances atomically from one fee template and
// a roster.
type IssuanceService struct {
	balances  issuanceBalanceRepository
	students  issuanceStudentRepository
	idem      idempotencyStore
	metrics   *MetricsService
	activity  *ActivityService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewIssuanceService constructs the bulk issuance engine.
func NewIssuanceService(balances issuanceBalanceRepository, students issuanceStudentRepository, idem idempotencyStore, metrics *MetricsService, activity *ActivityService, validate *validator.Validate, logger *zap.Logger) *IssuanceService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IssuanceService{balances: balances, students: students, idem: idem, metrics: metrics, activity: activity, validator: validate, logger: logger}
}

// IssueFees validates the template and roster, then writes one pending
// balance per roster entry in a single transaction. Any failure leaves the
// balance store untouched; the caller resubmits the entire roster.
func (s *IssuanceService) IssueFees(ctx context.Context, req IssueFeesRequest) (*IssueFeesResult, error) {
	fields := s.validateTemplate(req)
	if len(fields) > 0 {
		return nil, appErrors.WithFields("invalid fee issuance payload", fields)
	}

	if s.idem != nil && req.IdempotencyKey != "" {
		claimed, stored, err := s.idem.Claim(ctx, "issue-fees", req.IdempotencyKey)
		if err != nil {
			if err == repository.ErrOperationInFlight {
				return nil, appErrors.Clone(appErrors.ErrConflict, "an identical issuance is still in flight")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "idempotency store unavailable")
		}
		if !claimed {
			var result IssueFeesResult
			if err := json.Unmarshal(stored, &result); err == nil {
				return &result, nil
			}
		}
	}

	result, err := s.issue(ctx, req)
	if s.idem != nil && req.IdempotencyKey != "" {
		if err != nil {
			_ = s.idem.Release(ctx, "issue-fees", req.IdempotencyKey)
		} else if payload, marshalErr := json.Marshal(result); marshalErr == nil {
			_ = s.idem.Complete(ctx, "issue-fees", req.IdempotencyKey, payload)
		}
	}
	return result, err
}

func (s *IssuanceService) issue(ctx context.Context, req IssueFeesRequest) (*IssueFeesResult, error) {
	students, err := s.students.FindByIDs(ctx, req.StudentIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve roster")
	}
	known := make(map[string]struct{}, len(students))
	for _, st := range students {
		known[st.ID] = struct{}{}
	}
	var invalid []appErrors.FieldError
	for _, id := range req.StudentIDs {
		if _, ok := known[id]; !ok {
			invalid = append(invalid, appErrors.FieldError{Field: "students", Message: fmt.Sprintf("student %s does not exist", id)})
		}
	}
	if len(invalid) > 0 {
		return nil, appErrors.WithFields("roster contains unknown students", invalid)
	}

	dueDate, _ := time.Parse(dateLayout, req.Fee.DueDate)
	now := time.Now().UTC()
	balances := make([]models.Balance, 0, len(req.StudentIDs))
	for _, id := range req.StudentIDs {
		due := dueDate
		balances = append(balances, models.Balance{
			StudentID:   id,
			Type:        req.Fee.Type,
			Description: req.Fee.Description,
			Amount:      req.Fee.Amount,
			Status:      models.BalanceStatusPending,
			DueDate:     &due,
			CreatedAt:   now,
		})
	}

	if err := s.balances.BulkCreate(ctx, balances); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to create balances")
	}

	s.metrics.AddBalancesIssued(len(balances))
	s.recordActivity(req, len(balances))
	s.logger.Info("fees issued",
		zap.String("type", req.Fee.Type),
		zap.String("amount", req.Fee.Amount.String()),
		zap.Int("count", len(balances)),
	)

	return &IssueFeesResult{Success: true, Count: len(balances), Timestamp: now}, nil
}

// validateTemplate enumerates every failing field rather than stopping at the
// first.
func (s *IssuanceService) validateTemplate(req IssueFeesRequest) []appErrors.FieldError {
	var fields []appErrors.FieldError

	if err := s.validator.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if ok := asValidationErrors(err, &verrs); ok {
			for _, fe := range verrs {
				fields = append(fields, appErrors.FieldError{Field: fe.Field(), Message: fmt.Sprintf("failed %s validation", fe.Tag())})
			}
		} else {
			fields = append(fields, appErrors.FieldError{Field: "payload", Message: err.Error()})
		}
	}

	if !req.Fee.Amount.IsPositive() {
		fields = append(fields, appErrors.FieldError{Field: "amount", Message: "must be greater than zero"})
	}
	if req.Fee.DueDate != "" {
		due, err := time.Parse(dateLayout, req.Fee.DueDate)
		if err != nil {
			fields = append(fields, appErrors.FieldError{Field: "due_date", Message: "must be a date in YYYY-MM-DD format"})
		} else if !due.After(time.Now().UTC().Truncate(24 * time.Hour)) {
			fields = append(fields, appErrors.FieldError{Field: "due_date", Message: "must be strictly in the future"})
		}
	}

	return fields
}

func (s *IssuanceService) recordActivity(req IssueFeesRequest, count int) {
	if s.activity == nil {
		return
	}
	var actorID *string
	if req.Actor != nil {
		actorID = &req.Actor.UserID
	}
	s.activity.Record(ActivityEntry{
		ActorID:   actorID,
		Action:    models.AuditActionFeesBulkIssue,
		Resource:  "balances",
		Detail:    map[string]interface{}{"type": req.Fee.Type, "amount": req.Fee.Amount.String(), "count": count},
		IPAddress: req.IP,
	})
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if ok {
		*target = verrs
	}
	return ok
}
