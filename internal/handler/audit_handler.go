package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/shiftboard-api/internal/dto"
	"github.com/noah-isme/shiftboard-api/internal/models"
	appErrors "github.com/noah-isme/shiftboard-api/pkg/errors"
	"github.com/noah-isme/shiftboard-api/pkg/response"
)

type auditReader interface {
	List(ctx context.Context, query dto.AuditQuery, principal *models.Principal) ([]models.AuditEntry, error)
}

// AuditHandler exposes the audit trail to managers.
type AuditHandler struct {
	audit auditReader
}

// NewAuditHandler builds a new handler.
func NewAuditHandler(audit auditReader) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// List godoc
// @Summary Read the audit trail
// @Tags Audit
// @Produce json
// @Param entity_type query string false "signup, shift, event or user"
// @Param entity_id query string false "Entity ID"
// @Param actor_id query string false "Actor user ID"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /audit-logs [get]
func (h *AuditHandler) List(c *gin.Context) {
	var query dto.AuditQuery
	if err := c.ShouldBindQuery(&query); err != nil || query.Limit < 0 || query.Offset < 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query parameters"))
		return
	}
	entries, err := h.audit.List(c.Request.Context(), query, principalFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, page(query.Limit, query.Offset, len(entries)))
}
