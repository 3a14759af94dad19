package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/shiftboard-api/internal/middleware"
	"github.com/noah-isme/shiftboard-api/internal/models"
	appErrors "github.com/noah-isme/shiftboard-api/pkg/errors"
	"github.com/noah-isme/shiftboard-api/pkg/response"
)

func principalFromContext(c *gin.Context) *models.Principal {
	return middleware.PrincipalFrom(c)
}

// pageFromQuery reads limit/offset. Zero means "use the store default".
func pageFromQuery(c *gin.Context) (limit, offset int, err error) {
	if limit, err = nonNegativeQueryInt(c, "limit"); err != nil {
		return 0, 0, err
	}
	if offset, err = nonNegativeQueryInt(c, "offset"); err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}

func nonNegativeQueryInt(c *gin.Context, name string) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, name+" must be a non-negative integer")
	}
	return v, nil
}

func page(limit, offset, count int) *response.Pagination {
	return &response.Pagination{Limit: limit, Offset: offset, Count: count}
}
