package dto

import (
	"time"

	"github.com/noah-isme/shiftboard-api/internal/models"
)

// ProposeEventRequest payload for submitting a proposal.
type ProposeEventRequest struct {
	Title       string                 `json:"title" validate:"required,max=200"`
	Description *string                `json:"description" validate:"omitempty,max=4000"`
	Visibility  models.EventVisibility `json:"visibility" validate:"omitempty,oneof=public restricted"`
	StartTime   time.Time              `json:"start_time" validate:"required"`
	EndTime     time.Time              `json:"end_time" validate:"required,gtfield=StartTime"`
}

// DecideEventRequest captures a manager's verdict.
type DecideEventRequest struct {
	Status models.EventStatus `json:"status" validate:"required,oneof=approved rejected"`
	Notes  *string            `json:"notes" validate:"omitempty,max=2000"`
}

// UpdateEventRequest is a partial update of descriptive fields.
type UpdateEventRequest struct {
	Title       *string                 `json:"title"`
	Description *string                 `json:"description"`
	Visibility  *models.EventVisibility `json:"visibility"`
	StartTime   *time.Time              `json:"start_time"`
	EndTime     *time.Time              `json:"end_time"`
}

// EventQuery mirrors supported listing filters.
type EventQuery struct {
	Status []models.EventStatus
	Limit  int
	Offset int
}
