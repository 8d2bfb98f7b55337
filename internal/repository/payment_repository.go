package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-fees-api/internal/models"
)

// ErrNotPayable is returned when one or more target balances are not pending
// at commit time. The caller must treat it as a conflict, not retry it.
var ErrNotPayable = errors.New("balance is not payable")

// PaymentRepository owns the payment ledger and the atomic settle path.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs a PaymentRepository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `id, student_id, amount, payment_method, reference_number, status, balance_ids, is_group, paid_at, created_at`

// Settle commits one payment and transitions every referenced balance from
// pending to paid as a single transaction. The guarded UPDATE leaves the
// outcome of two concurrent attempts on the same balance to the storage
// engine's row isolation: exactly one transaction observes the pending row
// and wins; the other matches zero rows and returns ErrNotPayable. If any
// balance in the set is not pending the whole transaction rolls back, so a
// group payment is never partially applied.
func (r *PaymentRepository) Settle(ctx context.Context, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if payment.PaidAt.IsZero() {
		payment.PaidAt = now
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = now
	}
	payment.Status = models.PaymentStatusCompleted

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin settle payment: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			tx.Rollback()
		}
	}()

	const update = `UPDATE balances
        SET status = $1, paid_at = $2, payment_method = $3, reference_number = $4, payment_id = $5, updated_at = $6
        WHERE id = ANY($7) AND status = $8
        RETURNING id`
	var updated []string
	if err := tx.SelectContext(ctx, &updated, update,
		models.BalanceStatusPaid, payment.PaidAt, payment.PaymentMethod, payment.ReferenceNumber,
		payment.ID, now, pq.Array([]string(payment.BalanceIDs)), models.BalanceStatusPending); err != nil {
		return fmt.Errorf("mark balances paid: %w", err)
	}
	if len(updated) != len(payment.BalanceIDs) {
		return ErrNotPayable
	}

	const insert = `INSERT INTO payments (id, student_id, amount, payment_method, reference_number, status, balance_ids, is_group, paid_at, created_at)
        VALUES (:id, :student_id, :amount, :payment_method, :reference_number, :status, :balance_ids, :is_group, :paid_at, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insert, payment); err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit settle payment: %w", err)
	}
	commit = true
	return nil
}

// FindByID fetches a payment by ID.
func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	query := fmt.Sprintf("SELECT %s FROM payments WHERE id = $1", paymentColumns)
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, query, id); err != nil {
		return nil, err
	}
	return &payment, nil
}

// List returns ledger entries matching the filter.
func (r *PaymentRepository) List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error) {
	base := "FROM payments p"
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("p.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Method != "" {
		conditions = append(conditions, fmt.Sprintf("p.payment_method = $%d", len(args)+1))
		args = append(args, filter.Method)
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"paid_at":    "p.paid_at",
		"amount":     "p.amount",
		"created_at": "p.created_at",
	}
	if sortBy == "" {
		sortBy = "paid_at"
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "p.paid_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT p.%s %s ORDER BY %s %s LIMIT %d OFFSET %d",
		strings.ReplaceAll(paymentColumns, ", ", ", p."), base, column, order, size, offset)

	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}
	return payments, total, nil
}
