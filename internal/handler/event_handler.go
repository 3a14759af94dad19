package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/shiftboard-api/internal/dto"
	"github.com/noah-isme/shiftboard-api/internal/models"
	appErrors "github.com/noah-isme/shiftboard-api/pkg/errors"
	"github.com/noah-isme/shiftboard-api/pkg/response"
)

type proposalService interface {
	Propose(ctx context.Context, req dto.ProposeEventRequest, principal *models.Principal) (*models.Event, error)
	Decide(ctx context.Context, id string, req dto.DecideEventRequest, principal *models.Principal) (*models.Event, error)
	Edit(ctx context.Context, id string, req dto.UpdateEventRequest, principal *models.Principal) (*models.Event, error)
	Retire(ctx context.Context, id string, principal *models.Principal) error
	List(ctx context.Context, query dto.EventQuery, principal *models.Principal) ([]models.Event, error)
	Get(ctx context.Context, id string, principal *models.Principal) (*models.Event, error)
	ListShifts(ctx context.Context, eventID string, principal *models.Principal) ([]models.ShiftSummary, error)
}

// EventHandler exposes the event proposal workflow.
type EventHandler struct {
	proposals proposalService
}

// NewEventHandler builds a new handler.
func NewEventHandler(proposals proposalService) *EventHandler {
	return &EventHandler{proposals: proposals}
}

// List godoc
// @Summary List events visible to the caller
// @Description Anonymous callers see approved events only; members also see their own proposals; managers see everything.
// @Tags Events
// @Produce json
// @Param status query string false "Comma separated statuses (pending,approved,rejected)"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /events [get]
func (h *EventHandler) List(c *gin.Context) {
	statuses, err := parseStatuses(c.Query("status"))
	if err != nil {
		response.Error(c, err)
		return
	}
	limit, offset, err := pageFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	events, err := h.proposals.List(c.Request.Context(), dto.EventQuery{Status: statuses, Limit: limit, Offset: offset}, principalFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, page(limit, offset, len(events)))
}

// Get godoc
// @Summary Get an event
// @Tags Events
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /events/{id} [get]
func (h *EventHandler) Get(c *gin.Context) {
	event, err := h.proposals.Get(c.Request.Context(), c.Param("id"), principalFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// Propose godoc
// @Summary Propose an event
// @Tags Events
// @Accept json
// @Produce json
// @Param payload body dto.ProposeEventRequest true "Proposal"
// @Success 201 {object} response.Envelope
// @Router /events [post]
func (h *EventHandler) Propose(c *gin.Context) {
	var req dto.ProposeEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	event, err := h.proposals.Propose(c.Request.Context(), req, principalFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, event)
}

// Decide godoc
// @Summary Approve or reject a pending proposal
// @Tags Events
// @Accept json
// @Produce json
// @Param id path string true "Event ID"
// @Param payload body dto.DecideEventRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope "ALREADY_DECIDED"
// @Router /events/{id}/status [patch]
func (h *EventHandler) Decide(c *gin.Context) {
	var req dto.DecideEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	event, err := h.proposals.Decide(c.Request.Context(), c.Param("id"), req, principalFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// Update godoc
// @Summary Edit a proposal's details
// @Tags Events
// @Accept json
// @Produce json
// @Param id path string true "Event ID"
// @Param payload body dto.UpdateEventRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Router /events/{id} [put]
func (h *EventHandler) Update(c *gin.Context) {
	var req dto.UpdateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	event, err := h.proposals.Edit(c.Request.Context(), c.Param("id"), req, principalFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// Delete godoc
// @Summary Retire a proposal
// @Tags Events
// @Param id path string true "Event ID"
// @Success 204
// @Router /events/{id} [delete]
func (h *EventHandler) Delete(c *gin.Context) {
	if err := h.proposals.Retire(c.Request.Context(), c.Param("id"), principalFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Shifts godoc
// @Summary List shifts linked to an event
// @Tags Events
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Router /events/{id}/shifts [get]
func (h *EventHandler) Shifts(c *gin.Context) {
	shifts, err := h.proposals.ListShifts(c.Request.Context(), c.Param("id"), principalFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, shifts, nil)
}

func parseStatuses(raw string) ([]models.EventStatus, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out []models.EventStatus
	for _, part := range strings.Split(raw, ",") {
		status := models.EventStatus(strings.ToLower(strings.TrimSpace(part)))
		switch status {
		case models.EventStatusPending, models.EventStatusApproved, models.EventStatusRejected:
			out = append(out, status)
		case "":
		default:
			return nil, appErrors.Clone(appErrors.ErrValidation, "status must be one of [pending approved rejected]")
		}
	}
	return out, nil
}
