package drone

import (
	"net/http"

	"github.com/gin-gonic/gin"

	domainerrors "drone-fleet/internal/errors"
	"drone-fleet/internal/pkg/apperrors"
	"drone-fleet/internal/pkg/pagination"
)

// PermitRequester forwards a flight-permit request to a connected drone.
// It avoids importing the fleet package.
type PermitRequester interface {
	RequestFlightPermit(droneID string) bool
}

type Handler struct {
	service Service
	permits PermitRequester
}

func NewHandler(service Service, permits PermitRequester) *Handler {
	return &Handler{service: service, permits: permits}
}

func (h *Handler) ListDrones(c *gin.Context) {
	page, limit := pagination.Parse(c)

	drones, total, err := h.service.ListActive(c.Request.Context(), page, limit)
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{Drones: drones, Total: total, Page: page, Limit: limit})
}

func (h *Handler) GetDrone(c *gin.Context) {
	d, err := h.service.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"drone": d})
}

func (h *Handler) GetDroneLocation(c *gin.Context) {
	loc, err := h.service.GetDroneLocation(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, loc)
}

func (h *Handler) RequestFlightPermit(c *gin.Context) {
	id := c.Param("id")
	if !h.permits.RequestFlightPermit(id) {
		apperrors.ToHTTPError(c, domainerrors.DroneNotConnected(id))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "flight permit requested", "drone_id": id})
}
