package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"drone-fleet/internal/pkg/apperrors"
)

// TokenRequest is accepted as a form or a JSON body.
type TokenRequest struct {
	Name string `form:"name" json:"name" binding:"required"`
	Role string `form:"role" json:"role" binding:"required,oneof=operator viewer"`
}

type Handler struct {
	authService Service
}

func NewHandler(authService Service) *Handler {
	return &Handler{authService: authService}
}

func (h *Handler) IssueToken(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBind(&req); err != nil {
		apperrors.BadRequest(c, "name and role (operator or viewer) are required")
		return
	}

	issued, err := h.authService.IssueToken(req.Name, req.Role)
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}

	c.JSON(http.StatusOK, issued)
}
