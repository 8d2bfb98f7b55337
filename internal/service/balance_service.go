package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-fees-api/internal/models"
	"github.com/noah-isme/sma-fees-api/internal/repository"
	appErrors "github.com/noah-isme/sma-fees-api/pkg/errors"
)

type balanceRepository interface {
	Create(ctx context.Context, balance *models.Balance) error
	FindByID(ctx context.Context, id string) (*models.Balance, error)
	List(ctx context.Context, filter models.BalanceFilter) ([]models.Balance, int, error)
	Cancel(ctx context.Context, id string) error
}

type balanceStudentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

// CreateBalanceRequest is the manual single-add payload.
type CreateBalanceRequest struct {
	StudentID   string          `json:"student_id" validate:"required"`
	Type        string          `json:"type" validate:"required"`
	Description string          `json:"description" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
	DueDate     string          `json:"due_date"`

	Actor *models.JWTClaims `json:"-"`
	IP    string            `json:"-"`
}

// BalanceService handles single-balance use-cases outside the payment path.
type BalanceService struct {
	balances  balanceRepository
	students  balanceStudentRepository
	metrics   *MetricsService
	activity  *ActivityService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewBalanceService constructs the balance service.
func NewBalanceService(balances balanceRepository, students balanceStudentRepository, metrics *MetricsService, activity *ActivityService, validate *validator.Validate, logger *zap.Logger) *BalanceService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BalanceService{balances: balances, students: students, metrics: metrics, activity: activity, validator: validate, logger: logger}
}

// Create adds one fee obligation for one student.
func (s *BalanceService) Create(ctx context.Context, req CreateBalanceRequest) (*models.Balance, error) {
	var fields []appErrors.FieldError
	if err := s.validator.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if asValidationErrors(err, &verrs) {
			for _, fe := range verrs {
				fields = append(fields, appErrors.FieldError{Field: fe.Field(), Message: "failed " + fe.Tag() + " validation"})
			}
		} else {
			fields = append(fields, appErrors.FieldError{Field: "payload", Message: err.Error()})
		}
	}
	if !req.Amount.IsPositive() {
		fields = append(fields, appErrors.FieldError{Field: "amount", Message: "must be greater than zero"})
	}
	var dueDate *time.Time
	if req.DueDate != "" {
		due, err := time.Parse(dateLayout, req.DueDate)
		if err != nil {
			fields = append(fields, appErrors.FieldError{Field: "due_date", Message: "must be a date in YYYY-MM-DD format"})
		} else {
			dueDate = &due
		}
	}
	if len(fields) > 0 {
		return nil, appErrors.WithFields("invalid balance payload", fields)
	}

	if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	balance := &models.Balance{
		StudentID:   req.StudentID,
		Type:        req.Type,
		Description: req.Description,
		Amount:      req.Amount,
		Status:      models.BalanceStatusPending,
		DueDate:     dueDate,
	}
	if err := s.balances.Create(ctx, balance); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to create balance")
	}

	s.metrics.AddBalancesIssued(1)
	s.recordActivity(req.Actor, req.IP, models.AuditActionBalanceCreate, balance.ID)
	return balance, nil
}

// Get returns a single balance.
func (s *BalanceService) Get(ctx context.Context, id string) (*models.Balance, error) {
	balance, err := s.balances.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "balance not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load balance")
	}
	return balance, nil
}

// List returns balances and pagination metadata.
func (s *BalanceService) List(ctx context.Context, filter models.BalanceFilter) ([]models.Balance, *models.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown balance status")
	}
	balances, total, err := s.balances.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list balances")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return balances, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Cancel is the explicit admin action moving a pending balance to cancelled.
func (s *BalanceService) Cancel(ctx context.Context, id string, actor *models.JWTClaims, ip string) (*models.Balance, error) {
	if _, err := s.balances.FindByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "balance not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load balance")
	}
	if err := s.balances.Cancel(ctx, id); err != nil {
		if err == repository.ErrNotCancellable {
			return nil, appErrors.Clone(appErrors.ErrConflict, "only pending balances can be cancelled")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to cancel balance")
	}
	s.recordActivity(actor, ip, models.AuditActionBalanceCancel, id)
	return s.Get(ctx, id)
}

func (s *BalanceService) recordActivity(actor *models.JWTClaims, ip, action, balanceID string) {
	if s.activity == nil {
		return
	}
	var actorID *string
	if actor != nil {
		actorID = &actor.UserID
	}
	s.activity.Record(ActivityEntry{
		ActorID:    actorID,
		Action:     action,
		Resource:   "balances",
		ResourceID: &balanceID,
		IPAddress:  ip,
	})
}
