package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/shiftboard-api/internal/dto"
	"github.com/noah-isme/shiftboard-api/internal/models"
	"github.com/noah-isme/shiftboard-api/internal/service"
	appErrors "github.com/noah-isme/shiftboard-api/pkg/errors"
	"github.com/noah-isme/shiftboard-api/pkg/response"
)

type shiftService interface {
	List(ctx context.Context, query dto.ShiftQuery, principal *models.Principal) ([]models.ShiftSummary, error)
	Get(ctx context.Context, id string, principal *models.Principal) (*models.ShiftSummary, error)
	Create(ctx context.Context, req dto.CreateShiftRequest, principal *models.Principal) (*models.Shift, error)
	Update(ctx context.Context, id string, req dto.UpdateShiftRequest, principal *models.Principal) (*models.Shift, error)
	Retire(ctx context.Context, id string, principal *models.Principal) error
	Participants(ctx context.Context, id string, principal *models.Principal) (*models.ShiftSummary, []models.Participant, error)
	ExportParticipants(ctx context.Context, id string, format dto.ExportFormat, principal *models.Principal) (*service.ExportFile, error)
}

type admissionService interface {
	TryClaim(ctx context.Context, shiftID string, principal *models.Principal) (*models.Signup, error)
	RevokeClaim(ctx context.Context, shiftID, signupID string, principal *models.Principal) (*models.Signup, error)
}

// ShiftHandler exposes shift catalogue and signup endpoints.
type ShiftHandler struct {
	shifts    shiftService
	admission admissionService
}

// NewShiftHandler builds a new handler.
func NewShiftHandler(shifts shiftService, admission admissionService) *ShiftHandler {
	return &ShiftHandler{shifts: shifts, admission: admission}
}

// List godoc
// @Summary List active shifts
// @Tags Shifts
// @Produce json
// @Param event_id query string false "Event ID filter"
// @Param upcoming query bool false "Only shifts starting in the future"
// @Param limit query int false "Page size (default 50, max 200)"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /shifts [get]
func (h *ShiftHandler) List(c *gin.Context) {
	var query dto.ShiftQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query parameters"))
		return
	}
	if query.Limit < 0 || query.Offset < 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "limit and offset must be non-negative"))
		return
	}
	shifts, err := h.shifts.List(c.Request.Context(), query, principalFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, shifts, page(query.Limit, query.Offset, len(shifts)))
}

// Get godoc
// @Summary Get shift detail with remaining places
// @Tags Shifts
// @Produce json
// @Param id path string true "Shift ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /shifts/{id} [get]
func (h *ShiftHandler) Get(c *gin.Context) {
	shift, err := h.shifts.Get(c.Request.Context(), c.Param("id"), principalFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, shift, nil)
}

// Create godoc
// @Summary Open a shift
// @Tags Shifts
// @Accept json
// @Produce json
// @Param payload body dto.CreateShiftRequest true "Shift payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /shifts [post]
func (h *ShiftHandler) Create(c *gin.Context) {
	var req dto.CreateShiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	shift, err := h.shifts.Create(c.Request.Context(), req, principalFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, shift)
}

// Update godoc
// @Summary Update a shift
// @Tags Shifts
// @Accept json
// @Produce json
// @Param id path string true "Shift ID"
// @Param payload body dto.UpdateShiftRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Router /shifts/{id} [put]
func (h *ShiftHandler) Update(c *gin.Context) {
	var req dto.UpdateShiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	shift, err := h.shifts.Update(c.Request.Context(), c.Param("id"), req, principalFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, shift, nil)
}

// Delete godoc
// @Summary Retire a shift
// @Tags Shifts
// @Param id path string true "Shift ID"
// @Success 204
// @Router /shifts/{id} [delete]
func (h *ShiftHandler) Delete(c *gin.Context) {
	if err := h.shifts.Retire(c.Request.Context(), c.Param("id"), principalFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Claim godoc
// @Summary Sign up for a shift
// @Tags Signups
// @Produce json
// @Param id path string true "Shift ID"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope "SHIFT_FULL or ALREADY_CLAIMED"
// @Failure 503 {object} response.Envelope "RETRYABLE"
// @Router /shifts/{id}/signups [post]
func (h *ShiftHandler) Claim(c *gin.Context) {
	signup, err := h.admission.TryClaim(c.Request.Context(), c.Param("id"), principalFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, signup)
}

// Revoke godoc
// @Summary Cancel a member's signup
// @Tags Signups
// @Produce json
// @Param id path string true "Shift ID"
// @Param signupId path string true "Signup ID"
// @Success 200 {object} response.Envelope
// @Router /shifts/{id}/participants/{signupId} [delete]
func (h *ShiftHandler) Revoke(c *gin.Context) {
	signup, err := h.admission.RevokeClaim(c.Request.Context(), c.Param("id"), c.Param("signupId"), principalFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, signup, nil)
}

// Participants godoc
// @Summary List a shift's active participants
// @Tags Signups
// @Produce json
// @Param id path string true "Shift ID"
// @Success 200 {object} response.Envelope
// @Router /shifts/{id}/participants [get]
func (h *ShiftHandler) Participants(c *gin.Context) {
	shift, participants, err := h.shifts.Participants(c.Request.Context(), c.Param("id"), principalFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, participants, nil, map[string]interface{}{
		"shift_id":         shift.ID,
		"capacity":         shift.Capacity,
		"registered_count": shift.RegisteredCount,
		"remaining":        shift.Remaining,
	})
}

// ExportParticipants godoc
// @Summary Download the participant roster
// @Tags Signups
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Shift ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Router /shifts/{id}/participants/export [get]
func (h *ShiftHandler) ExportParticipants(c *gin.Context) {
	format := dto.ExportFormat(c.DefaultQuery("format", string(dto.ExportFormatCSV)))
	file, err := h.shifts.ExportParticipants(c.Request.Context(), c.Param("id"), format, principalFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}
