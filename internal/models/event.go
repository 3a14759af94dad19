package models

import "time"

// EventStatus captures proposal review states. Approved and rejected are terminal.
type EventStatus string

const (
	EventStatusPending  EventStatus = "pending"
	EventStatusApproved EventStatus = "approved"
	EventStatusRejected EventStatus = "rejected"
)

// EventVisibility controls whether non-members may attend an approved event.
type EventVisibility string

const (
	EventVisibilityPublic     EventVisibility = "public"
	EventVisibilityRestricted EventVisibility = "restricted"
)

// Valid reports whether v is a known visibility.
func (v EventVisibility) Valid() bool {
	return v == EventVisibilityPublic || v == EventVisibilityRestricted
}

// Event is a member-proposed event awaiting or past manager review.
type Event struct {
	ID            string          `db:"id" json:"id"`
	Title         string          `db:"title" json:"title"`
	Description   *string         `db:"description" json:"description,omitempty"`
	Visibility    EventVisibility `db:"visibility" json:"visibility"`
	StartTime     time.Time       `db:"start_time" json:"start_time"`
	EndTime       time.Time       `db:"end_time" json:"end_time"`
	CreatedBy     *string         `db:"created_by" json:"created_by,omitempty"`
	Status        EventStatus     `db:"status" json:"status"`
	DecidedBy     *string         `db:"decided_by" json:"decided_by,omitempty"`
	DecidedAt     *time.Time      `db:"decided_at" json:"decided_at,omitempty"`
	DecisionNotes *string         `db:"decision_notes" json:"decision_notes,omitempty"`
	Active        bool            `db:"active" json:"active"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
	CreatorName   *string         `db:"creator_name" json:"creator_name,omitempty"`
}

// EventFilter narrows event listings beyond the visibility rule.
type EventFilter struct {
	Status []EventStatus
	Limit  int
	Offset int
}
