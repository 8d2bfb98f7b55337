package models

import "time"

// AuditAction constants represent actions recorded in the activity log.
const (
	AuditActionFeesBulkIssue      = "FEES_BULK_ISSUE"
	AuditActionBalanceCreate      = "BALANCE_CREATE"
	AuditActionBalanceCancel      = "BALANCE_CANCEL"
	AuditActionPaymentProcess     = "PAYMENT_PROCESS"
	AuditActionRemindersRun       = "REMINDERS_RUN"
	AuditActionStudentsReconcile  = "STUDENTS_RECONCILE"
	AuditActionStudentProvision   = "STUDENT_PROVISION"
	AuditActionNotificationMarked = "NOTIFICATION_READ"
)

// AuditLog represents an activity trail record. The log is a write-only sink;
// nothing in the engine reads it back.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	ActorID    *string   `db:"actor_id" json:"actor_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	Detail     []byte    `db:"detail" json:"detail,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
