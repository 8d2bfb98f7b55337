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

// ErrNotCancellable is returned when a cancel targets a balance that is no
// longer pending.
var ErrNotCancellable = errors.New("balance is not pending")

// BalanceRepository manages persistence for fee obligations.
type BalanceRepository struct {
	db *sqlx.DB
}

// NewBalanceRepository constructs a BalanceRepository.
func NewBalanceRepository(db *sqlx.DB) *BalanceRepository {
	return &BalanceRepository{db: db}
}

const balanceColumns = `id, student_id, type, description, amount, status, due_date, paid_at, payment_method, reference_number, payment_id, created_at, updated_at`

// Create inserts a single balance record.
func (r *BalanceRepository) Create(ctx context.Context, balance *models.Balance) error {
	prepareBalance(balance)
	const query = `INSERT INTO balances (id, student_id, type, description, amount, status, due_date, created_at, updated_at)
        VALUES (:id, :student_id, :type, :description, :amount, :status, :due_date, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, balance); err != nil {
		return fmt.Errorf("create balance: %w", err)
	}
	return nil
}

// BulkCreate persists every balance in one transaction. Either all records
// commit or none do.
func (r *BalanceRepository) BulkCreate(ctx context.Context, balances []models.Balance) error {
	if len(balances) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bulk create balances: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			tx.Rollback()
		}
	}()

	const query = `INSERT INTO balances (id, student_id, type, description, amount, status, due_date, created_at, updated_at)
        VALUES (:id, :student_id, :type, :description, :amount, :status, :due_date, :created_at, :updated_at)`
	for i := range balances {
		prepareBalance(&balances[i])
		if _, err := tx.NamedExecContext(ctx, query, &balances[i]); err != nil {
			return fmt.Errorf("bulk create balances: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bulk create balances: %w", err)
	}
	commit = true
	return nil
}

// FindByID fetches a balance by ID.
func (r *BalanceRepository) FindByID(ctx context.Context, id string) (*models.Balance, error) {
	query := fmt.Sprintf("SELECT %s FROM balances WHERE id = $1", balanceColumns)
	var balance models.Balance
	if err := r.db.GetContext(ctx, &balance, query, id); err != nil {
		return nil, err
	}
	return &balance, nil
}

// FindByIDs fetches a set of balances in one batch.
func (r *BalanceRepository) FindByIDs(ctx context.Context, ids []string) ([]models.Balance, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf("SELECT %s FROM balances WHERE id = ANY($1)", balanceColumns)
	var balances []models.Balance
	if err := r.db.SelectContext(ctx, &balances, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("find balances by ids: %w", err)
	}
	return balances, nil
}

// List returns balances matching the filter.
func (r *BalanceRepository) List(ctx context.Context, filter models.BalanceFilter) ([]models.Balance, int, error) {
	base := "FROM balances b"
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("b.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("b.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Type != "" {
		conditions = append(conditions, fmt.Sprintf("b.type = $%d", len(args)+1))
		args = append(args, filter.Type)
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"due_date":   "b.due_date",
		"amount":     "b.amount",
		"created_at": "b.created_at",
	}
	if sortBy == "" {
		sortBy = "created_at"
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "b.created_at"
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

	query := fmt.Sprintf(`SELECT b.%s %s ORDER BY %s %s LIMIT %d OFFSET %d`,
		strings.ReplaceAll(balanceColumns, ", ", ", b."), base, column, order, size, offset)

	var balances []models.Balance
	if err := r.db.SelectContext(ctx, &balances, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list balances: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count balances: %w", err)
	}
	return balances, total, nil
}

// Cancel transitions a pending balance to cancelled. The status guard keeps
// the admin action from clobbering a concurrent payment.
func (r *BalanceRepository) Cancel(ctx context.Context, id string) error {
	const query = `UPDATE balances SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, id, models.BalanceStatusCancelled, time.Now().UTC(), models.BalanceStatusPending)
	if err != nil {
		return fmt.Errorf("cancel balance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("cancel balance: %w", err)
	}
	if affected == 0 {
		return ErrNotCancellable
	}
	return nil
}

// ListPendingDue returns pending balances for reminder classification. When
// requireDueDate is true, dateless balances are excluded.
func (r *BalanceRepository) ListPendingDue(ctx context.Context, requireDueDate bool, limit int) ([]models.PendingDue, error) {
	query := `SELECT b.id AS balance_id, b.student_id, b.type, b.amount, b.due_date
        FROM balances b WHERE b.status = $1`
	if requireDueDate {
		query += " AND b.due_date IS NOT NULL"
	}
	query += " ORDER BY b.due_date ASC NULLS LAST"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	var rows []models.PendingDue
	if err := r.db.SelectContext(ctx, &rows, query, models.BalanceStatusPending); err != nil {
		return nil, fmt.Errorf("list pending balances: %w", err)
	}
	return rows, nil
}

func prepareBalance(balance *models.Balance) {
	if balance.ID == "" {
		balance.ID = uuid.NewString()
	}
	if balance.Status == "" {
		balance.Status = models.BalanceStatusPending
	}
	now := time.Now().UTC()
	if balance.CreatedAt.IsZero() {
		balance.CreatedAt = now
	}
	balance.UpdatedAt = now
}
