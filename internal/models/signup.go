package models

import "time"

// SignupStatus captures the claim lifecycle. Cancelled is terminal.
type SignupStatus string

const (
	SignupStatusActive    SignupStatus = "active"
	SignupStatusCancelled SignupStatus = "cancelled"
)

// Signup is one member's claim on a shift. Rows are never deleted.
type Signup struct {
	ID          string       `db:"id" json:"id"`
	ShiftID     string       `db:"shift_id" json:"shift_id"`
	UserID      string       `db:"user_id" json:"user_id"`
	Status      SignupStatus `db:"status" json:"status"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	CancelledAt *time.Time   `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CancelledBy *string      `db:"cancelled_by" json:"cancelled_by,omitempty"`
}

// Participant joins a signup with the member's contact details.
type Participant struct {
	SignupID    string       `db:"signup_id" json:"signup_id"`
	ShiftID     string       `db:"shift_id" json:"shift_id"`
	UserID      string       `db:"user_id" json:"user_id"`
	Email       string       `db:"email" json:"email"`
	DisplayName string       `db:"display_name" json:"display_name"`
	Status      SignupStatus `db:"status" json:"status"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
}
