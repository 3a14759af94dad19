package dto

import "time"

// CreateShiftRequest payload for opening a new shift.
type CreateShiftRequest struct {
	EventID     *string   `json:"event_id"`
	Title       string    `json:"title" validate:"required,max=200"`
	Description *string   `json:"description" validate:"omitempty,max=4000"`
	Location    *string   `json:"location" validate:"omitempty,max=200"`
	StartTime   time.Time `json:"start_time" validate:"required"`
	EndTime     time.Time `json:"end_time" validate:"required,gtfield=StartTime"`
	Capacity    int       `json:"capacity" validate:"required,min=1"`
}

// UpdateShiftRequest is a partial update; nil fields keep their current value.
type UpdateShiftRequest struct {
	EventID     *string    `json:"event_id"`
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Location    *string    `json:"location"`
	StartTime   *time.Time `json:"start_time"`
	EndTime     *time.Time `json:"end_time"`
	Capacity    *int       `json:"capacity"`
}

// ShiftQuery mirrors supported listing filters.
type ShiftQuery struct {
	EventID      string `form:"event_id"`
	UpcomingOnly bool   `form:"upcoming"`
	Limit        int    `form:"limit"`
	Offset       int    `form:"offset"`
}

// ExportFormat names a roster rendering.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)
