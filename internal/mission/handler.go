package mission

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"drone-fleet/internal/pkg/apperrors"
	"drone-fleet/internal/pkg/pagination"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// -------------------------------------------------------------------------------------------------
func (h *Handler) CreateMission(c *gin.Context) {
	var req CreateMissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BadRequest(c, err.Error())
		return
	}

	m := req.ToMission()
	if err := h.service.Create(c.Request.Context(), m); err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusCreated, MissionResponse{Mission: m})
}

// -------------------------------------------------------------------------------------------------
func (h *Handler) GetMission(c *gin.Context) {
	m, err := h.service.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, MissionResponse{Mission: m})
}

// -------------------------------------------------------------------------------------------------
func (h *Handler) ListMissions(c *gin.Context) {
	page, limit := pagination.Parse(c)

	missions, total, err := h.service.List(c.Request.Context(), page, limit)
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{Missions: missions, Total: total, Page: page, Limit: limit})
}
