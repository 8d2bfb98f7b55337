package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// PaymentStatus is the state of a payment record. The processor only writes
// completed payments; the constant exists so the ledger stays explicit.
type PaymentStatus string

const PaymentStatusCompleted PaymentStatus = "COMPLETED"

// Payment is a completed transaction settling one or more balances. Amount
// always equals the sum of the referenced balances at payment time.
type Payment struct {
	ID              string          `db:"id" json:"id"`
	StudentID       string          `db:"student_id" json:"student_id"`
	Amount          decimal.Decimal `db:"amount" json:"amount"`
	PaymentMethod   string          `db:"payment_method" json:"payment_method"`
	ReferenceNumber string          `db:"reference_number" json:"reference_number"`
	Status          PaymentStatus   `db:"status" json:"status"`
	BalanceIDs      pq.StringArray  `db:"balance_ids" json:"balance_ids"`
	IsGroup         bool            `db:"is_group" json:"is_group"`
	PaidAt          time.Time       `db:"paid_at" json:"paid_at"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

// PaymentFilter narrows ledger listings.
type PaymentFilter struct {
	StudentID string
	Method    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
