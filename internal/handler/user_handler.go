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

type userService interface {
	List(ctx context.Context, query dto.UserQuery, principal *models.Principal) ([]models.User, error)
	UpdateRole(ctx context.Context, id string, req dto.UpdateRoleRequest, principal *models.Principal) (*models.User, error)
	Delete(ctx context.Context, id string, principal *models.Principal) error
}

// UserHandler exposes account administration.
type UserHandler struct {
	service userService
}

// NewUserHandler builds a new handler.
func NewUserHandler(service userService) *UserHandler {
	return &UserHandler{service: service}
}

// List godoc
// @Summary List accounts
// @Tags Users
// @Produce json
// @Param role query string false "member or manager"
// @Param active query bool false "Active filter"
// @Param limit query int false "Page size (default 50, max 200)"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /users [get]
func (h *UserHandler) List(c *gin.Context) {
	var query dto.UserQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query parameters"))
		return
	}
	if query.Limit < 0 || query.Offset < 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "limit and offset must be non-negative"))
		return
	}
	users, err := h.service.List(c.Request.Context(), query, principalFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, users, page(query.Limit, query.Offset, len(users)))
}

// UpdateRole godoc
// @Summary Change an account's role
// @Tags Users
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param payload body dto.UpdateRoleRequest true "New role"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /users/{id}/role [patch]
func (h *UserHandler) UpdateRole(c *gin.Context) {
	var req dto.UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	user, err := h.service.UpdateRole(c.Request.Context(), c.Param("id"), req, principalFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

// Delete godoc
// @Summary Remove an account
// @Description Deactivates the account and cancels its active signups; history is kept.
// @Tags Users
// @Param id path string true "User ID"
// @Success 204
// @Failure 400 {object} response.Envelope "cannot delete yourself"
// @Router /users/{id} [delete]
func (h *UserHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), principalFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
