package models

import "time"

// StudentStatus marks whether a student record is active in the directory.
type StudentStatus string

const (
	StudentStatusActive   StudentStatus = "ACTIVE"
	StudentStatusInactive StudentStatus = "INACTIVE"
)

// Student represents a learner identity in the billing directory.
// Email is the logical identity key; reconciliation guarantees at most one
// canonical record per email.
type Student struct {
	ID       string        `db:"id" json:"id"`
	Email    string        `db:"email" json:"email"`
	FullName string        `db:"full_name" json:"full_name"`
	Grade    string        `db:"grade" json:"grade"`
	Strand   string        `db:"strand" json:"strand"`
	Section  string        `db:"section" json:"section"`
	Status   StudentStatus `db:"status" json:"status"`
	// CreatedAt is nullable: records provisioned out of band may carry no
	// timestamp and are treated as the oldest during reconciliation.
	CreatedAt *time.Time `db:"created_at" json:"created_at,omitempty"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search    string
	Grade     string
	Section   string
	Status    StudentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// DuplicateGroup is a set of student records sharing one email.
type DuplicateGroup struct {
	Email   string
	Records []Student
}

// ReconciliationResult summarises one reconciliation run.
type ReconciliationResult struct {
	MergedEmails int      `json:"merged_emails"`
	RemovedIDs   []string `json:"removed_ids"`
}
