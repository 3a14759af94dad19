package models

import "time"

// Shift is a capacity-bounded slot members sign up for.
type Shift struct {
	ID          string    `db:"id" json:"id"`
	EventID     *string   `db:"event_id" json:"event_id,omitempty"`
	Title       string    `db:"title" json:"title"`
	Description *string   `db:"description" json:"description,omitempty"`
	Location    *string   `db:"location" json:"location,omitempty"`
	StartTime   time.Time `db:"start_time" json:"start_time"`
	EndTime     time.Time `db:"end_time" json:"end_time"`
	Capacity    int       `db:"capacity" json:"capacity"`
	Active      bool      `db:"active" json:"active"`
	CreatedBy   *string   `db:"created_by" json:"created_by,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ShiftSummary is a shift with its live occupancy.
type ShiftSummary struct {
	Shift
	RegisteredCount int `db:"registered_count" json:"registered_count"`
	Remaining       int `db:"-" json:"remaining"`
}

// ComputeRemaining fills Remaining from capacity and the active count.
// A capacity lowered below the count reports zero, never negative.
func (s *ShiftSummary) ComputeRemaining() {
	s.Remaining = s.Capacity - s.RegisteredCount
	if s.Remaining < 0 {
		s.Remaining = 0
	}
}

// ShiftFilter constrains shift listings.
type ShiftFilter struct {
	EventID string
	From    *time.Time
	Limit   int
	Offset  int
}
