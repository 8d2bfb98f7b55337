package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BalanceStatus is the lifecycle state of a fee obligation.
type BalanceStatus string

const (
	BalanceStatusPending   BalanceStatus = "PENDING"
	BalanceStatusPaid      BalanceStatus = "PAID"
	BalanceStatusCancelled BalanceStatus = "CANCELLED"
	BalanceStatusOverdue   BalanceStatus = "OVERDUE"
)

// Valid reports whether the status is one of the known states.
func (s BalanceStatus) Valid() bool {
	switch s {
	case BalanceStatusPending, BalanceStatusPaid, BalanceStatusCancelled, BalanceStatusOverdue:
		return true
	}
	return false
}

// Balance is a single fee obligation owed by a student. Balances are created
// by bulk issuance or a manual single-add, transition PENDING->PAID only
// through the payment processor, and are cancelled only by an explicit admin
// action. They are never physically deleted by the normal flow.
type Balance struct {
	ID              string          `db:"id" json:"id"`
	StudentID       string          `db:"student_id" json:"student_id"`
	Type            string          `db:"type" json:"type"`
	Description     string          `db:"description" json:"description"`
	Amount          decimal.Decimal `db:"amount" json:"amount"`
	Status          BalanceStatus   `db:"status" json:"status"`
	DueDate         *time.Time      `db:"due_date" json:"due_date,omitempty"`
	PaidAt          *time.Time      `db:"paid_at" json:"paid_at,omitempty"`
	PaymentMethod   *string         `db:"payment_method" json:"payment_method,omitempty"`
	ReferenceNumber *string         `db:"reference_number" json:"reference_number,omitempty"`
	PaymentID       *string         `db:"payment_id" json:"payment_id,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// BalanceFilter narrows balance listings.
type BalanceFilter struct {
	StudentID string
	Status    BalanceStatus
	Type      string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// FeeTemplate describes the fee applied to every roster entry of a bulk
// issuance.
type FeeTemplate struct {
	Type        string          `json:"type"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	DueDate     time.Time       `json:"due_date"`
}

// PendingDue is the projection the reminder scheduler classifies: a pending
// balance joined with its student.
type PendingDue struct {
	BalanceID string          `db:"balance_id"`
	StudentID string          `db:"student_id"`
	Type      string          `db:"type"`
	Amount    decimal.Decimal `db:"amount"`
	DueDate   *time.Time      `db:"due_date"`
}
