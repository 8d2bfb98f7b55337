package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// NotificationKind classifies a due-date reminder.
type NotificationKind string

const (
	NotificationKindUpcoming NotificationKind = "UPCOMING"
	NotificationKindOverdue  NotificationKind = "OVERDUE"
)

// NotificationStatus tracks whether the reminder has been read.
type NotificationStatus string

const (
	NotificationStatusUnread NotificationStatus = "UNREAD"
	NotificationStatusRead   NotificationStatus = "READ"
)

// Notification is one emitted due-date reminder. ThresholdBucket backs the
// (balance_id, threshold_bucket) uniqueness constraint that suppresses
// duplicate emission across repeated runs.
type Notification struct {
	ID              string             `db:"id" json:"id"`
	StudentID       string             `db:"student_id" json:"student_id"`
	BalanceID       string             `db:"balance_id" json:"related_balance_id"`
	Kind            NotificationKind   `db:"kind" json:"type"`
	Title           string             `db:"title" json:"title"`
	Message         string             `db:"message" json:"message"`
	ThresholdBucket string             `db:"threshold_bucket" json:"-"`
	Status          NotificationStatus `db:"status" json:"status"`
	CreatedAt       time.Time          `db:"created_at" json:"created_at"`
}

// NotificationDetail is the record consumed by the external notification
// surface, enriched with the related balance's due date and amount.
type NotificationDetail struct {
	Notification
	DueDate *time.Time      `db:"due_date" json:"due_date,omitempty"`
	Amount  decimal.Decimal `db:"amount" json:"amount"`
}

// NotificationFilter narrows notification listings.
type NotificationFilter struct {
	StudentID string
	Status    NotificationStatus
	Kind      NotificationKind
	Page      int
	PageSize  int
}
