package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-fees-api/internal/models"
)

// ErrAlreadyRead is returned when marking a notification that is not unread.
var ErrAlreadyRead = errors.New("notification is not unread")

// NotificationRepository manages persistence for reminder notifications.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs a NotificationRepository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// BatchCreate inserts a reminder batch in one transaction and returns the
// number of rows actually written. The unique (balance_id, threshold_bucket)
// constraint drops reminders already emitted by an earlier run, so repeated
// runs stay silent instead of duplicating unread reminders.
func (r *NotificationRepository) BatchCreate(ctx context.Context, notifications []models.Notification) (int, error) {
	if len(notifications) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin reminder batch: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			tx.Rollback()
		}
	}()

	const query = `INSERT INTO notifications (id, student_id, balance_id, kind, title, message, threshold_bucket, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (balance_id, threshold_bucket) DO NOTHING
        RETURNING id`
	created := 0
	now := time.Now().UTC()
	for i := range notifications {
		n := &notifications[i]
		if n.ID == "" {
			n.ID = uuid.NewString()
		}
		if n.Status == "" {
			n.Status = models.NotificationStatusUnread
		}
		if n.CreatedAt.IsZero() {
			n.CreatedAt = now
		}
		var insertedID string
		err := tx.QueryRowxContext(ctx, query, n.ID, n.StudentID, n.BalanceID, n.Kind, n.Title, n.Message, n.ThresholdBucket, n.Status, n.CreatedAt).Scan(&insertedID)
		if err != nil {
			if err == sql.ErrNoRows {
				continue
			}
			return 0, fmt.Errorf("insert reminder: %w", err)
		}
		created++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit reminder batch: %w", err)
	}
	commit = true
	return created, nil
}

// List returns notifications with their related balance context.
func (r *NotificationRepository) List(ctx context.Context, filter models.NotificationFilter) ([]models.NotificationDetail, int, error) {
	base := "FROM notifications n JOIN balances b ON b.id = n.balance_id"
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("n.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("n.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Kind != "" {
		conditions = append(conditions, fmt.Sprintf("n.kind = $%d", len(args)+1))
		args = append(args, filter.Kind)
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT n.id, n.student_id, n.balance_id, n.kind, n.title, n.message, n.threshold_bucket, n.status, n.created_at,
        b.due_date, b.amount
        %s ORDER BY n.created_at DESC LIMIT %d OFFSET %d`, base, size, offset)

	var rows []models.NotificationDetail
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}
	return rows, total, nil
}

// MarkRead transitions a notification from unread to read.
func (r *NotificationRepository) MarkRead(ctx context.Context, id string) error {
	const query = `UPDATE notifications SET status = $2 WHERE id = $1 AND status = $3`
	res, err := r.db.ExecContext(ctx, query, id, models.NotificationStatusRead, models.NotificationStatusUnread)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if affected == 0 {
		return ErrAlreadyRead
	}
	return nil
}
