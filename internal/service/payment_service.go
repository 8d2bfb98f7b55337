package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-fees-api/internal/models"
	"github.com/noah-isme/sma-fees-api/internal/repository"
	"github.com/noah-isme/sma-fees-api/pkg/config"
	appErrors "github.com/noah-isme/sma-fees-api/pkg/errors"
)

type paymentRepository interface {
	Settle(ctx context.Context, payment *models.Payment) error
	FindByID(ctx context.Context, id string) (*models.Payment, error)
	List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error)
}

type paymentBalanceRepository interface {
	FindByIDs(ctx context.Context, ids []string) ([]models.Balance, error)
}

// ProcessPaymentRequest settles one balance, or several when BalanceIDs is
// set. Exactly one of BalanceID / BalanceIDs must be provided.
type ProcessPaymentRequest struct {
	BalanceID       string   `json:"balance_id"`
	BalanceIDs      []string `json:"balance_ids"`
	PaymentMethod   string   `json:"payment_method" validate:"required"`
	ReferenceNumber string   `json:"reference_number"`

	IdempotencyKey string            `json:"-"`
	Actor          *models.JWTClaims `json:"-"`
	IP             string            `json:"-"`
}

// PaymentResult is returned for a completed payment.
type PaymentResult struct {
	PaymentID       string          `json:"payment_id"`
	ReferenceNumber string          `json:"reference_number"`
	Amount          decimal.Decimal `json:"amount"`
	Status          string          `json:"status"`
	IsGroup         bool            `json:"is_group"`
}

// PaymentService converts pending balances into completed payments.
type PaymentService struct {
	payments  paymentRepository
	balances  paymentBalanceRepository
	idem      idempotencyStore
	metrics   *MetricsService
	activity  *ActivityService
	cfg       config.PaymentsConfig
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPaymentService constructs the payment processor.
func NewPaymentService(payments paymentRepository, balances paymentBalanceRepository, idem idempotencyStore, metrics *MetricsService, activity *ActivityService, cfg config.PaymentsConfig, validate *validator.Validate, logger *zap.Logger) *PaymentService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ReferencePrefix == "" {
		cfg.ReferencePrefix = "PAY"
	}
	if cfg.MaxGroupSize <= 0 {
		cfg.MaxGroupSize = 50
	}
	return &PaymentService{payments: payments, balances: balances, idem: idem, metrics: metrics, activity: activity, cfg: cfg, validator: validate, logger: logger}
}

// Process settles the requested balances atomically. A balance that is not
// pending at commit time fails the whole request with a conflict; a group is
// never partially applied.
func (s *PaymentService) Process(ctx context.Context, req ProcessPaymentRequest) (*PaymentResult, error) {
	ids, err := s.resolveTargets(req)
	if err != nil {
		return nil, err
	}

	if s.idem != nil && req.IdempotencyKey != "" {
		claimed, stored, err := s.idem.Claim(ctx, "process-payment", req.IdempotencyKey)
		if err != nil {
			if err == repository.ErrOperationInFlight {
				return nil, appErrors.Clone(appErrors.ErrConflict, "an identical payment is still in flight")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "idempotency store unavailable")
		}
		if !claimed {
			var result PaymentResult
			if err := json.Unmarshal(stored, &result); err == nil {
				return &result, nil
			}
		}
	}

	result, err := s.settle(ctx, req, ids)
	if s.idem != nil && req.IdempotencyKey != "" {
		if err != nil {
			_ = s.idem.Release(ctx, "process-payment", req.IdempotencyKey)
		} else if payload, marshalErr := json.Marshal(result); marshalErr == nil {
			_ = s.idem.Complete(ctx, "process-payment", req.IdempotencyKey, payload)
		}
	}
	return result, err
}

func (s *PaymentService) settle(ctx context.Context, req ProcessPaymentRequest, ids []string) (*PaymentResult, error) {
	balances, err := s.balances.FindByIDs(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load balances")
	}
	if len(balances) != len(ids) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "one or more balances do not exist")
	}

	studentID := balances[0].StudentID
	amount := decimal.Zero
	for _, b := range balances {
		if b.StudentID != studentID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "grouped balances must belong to one student")
		}
		if b.Status != models.BalanceStatusPending {
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("balance %s is not payable", b.ID))
		}
		amount = amount.Add(b.Amount)
	}

	reference := req.ReferenceNumber
	if reference == "" {
		reference = s.generateReference()
	}

	payment := &models.Payment{
		StudentID:       studentID,
		Amount:          amount,
		PaymentMethod:   req.PaymentMethod,
		ReferenceNumber: reference,
		BalanceIDs:      ids,
		IsGroup:         len(ids) > 1,
	}

	if err := s.payments.Settle(ctx, payment); err != nil {
		if err == repository.ErrNotPayable {
			// Lost the race: another attempt settled at least one of the
			// balances first. Nothing was written.
			s.metrics.RecordPaymentConflict()
			return nil, appErrors.Clone(appErrors.ErrConflict, "balance is not payable")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to settle payment")
	}

	s.metrics.RecordPayment(payment.IsGroup)
	s.recordActivity(req, payment)
	s.logger.Info("payment settled",
		zap.String("payment_id", payment.ID),
		zap.String("student_id", studentID),
		zap.String("amount", amount.String()),
		zap.Bool("grouped", payment.IsGroup),
	)

	return &PaymentResult{
		PaymentID:       payment.ID,
		ReferenceNumber: payment.ReferenceNumber,
		Amount:          payment.Amount,
		Status:          string(payment.Status),
		IsGroup:         payment.IsGroup,
	}, nil
}

// Get returns one ledger entry.
func (s *PaymentService) Get(ctx context.Context, id string) (*models.Payment, error) {
	payment, err := s.payments.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	return payment, nil
}

// List returns ledger entries and pagination metadata.
func (s *PaymentService) List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, *models.Pagination, error) {
	payments, total, err := s.payments.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return payments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

func (s *PaymentService) resolveTargets(req ProcessPaymentRequest) ([]string, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}
	if req.BalanceID != "" && len(req.BalanceIDs) > 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "provide either balance_id or balance_ids, not both")
	}
	ids := req.BalanceIDs
	if req.BalanceID != "" {
		ids = []string{req.BalanceID}
	}
	if len(ids) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no balances referenced")
	}
	if len(ids) > s.cfg.MaxGroupSize {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("a grouped payment may settle at most %d balances", s.cfg.MaxGroupSize))
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, "duplicate balance id in group")
		}
		seen[id] = struct{}{}
	}
	return ids, nil
}

// generateReference derives a reference number from a time component and a
// random suffix. Uniqueness is probabilistic only; it is not checked against
// existing ledger rows.
func (s *PaymentService) generateReference() string {
	suffix := make([]byte, 3)
	if _, err := rand.Read(suffix); err != nil {
		return fmt.Sprintf("%s-%s-%06d", s.cfg.ReferencePrefix, time.Now().UTC().Format("20060102150405"), time.Now().UnixNano()%1000000)
	}
	return fmt.Sprintf("%s-%s-%s", s.cfg.ReferencePrefix, time.Now().UTC().Format("20060102150405"), hex.EncodeToString(suffix))
}

func (s *PaymentService) recordActivity(req ProcessPaymentRequest, payment *models.Payment) {
	if s.activity == nil {
		return
	}
	var actorID *string
	if req.Actor != nil {
		actorID = &req.Actor.UserID
	}
	s.activity.Record(ActivityEntry{
		ActorID:    actorID,
		Action:     models.AuditActionPaymentProcess,
		Resource:   "payments",
		ResourceID: &payment.ID,
		Detail: map[string]interface{}{
			"amount":    payment.Amount.String(),
			"method":    payment.PaymentMethod,
			"reference": payment.ReferenceNumber,
			"grouped":   payment.IsGroup,
			"balances":  len(payment.BalanceIDs),
		},
		IPAddress: req.IP,
	})
}
