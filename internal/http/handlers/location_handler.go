// README: Driver location update handler.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ridepool/internal/modules/location"
	"ridepool/internal/types"
)

type LocationHandler struct {
	svc *location.Service
}

func NewLocationHandler(svc *location.Service) *LocationHandler {
	return &LocationHandler{svc: svc}
}

func (h *LocationHandler) Update(c *gin.Context) {
	var req locationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	err := h.svc.Update(c.Request.Context(), location.Update{
		DriverID: types.ID(c.Param("id")),
		Position: types.Point{Lat: req.Lat, Lng: req.Lng},
	})
	if errors.Is(err, location.ErrUnknownDriver) {
		writeError(c, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "ok"})
}
