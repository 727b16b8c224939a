// README: Assignment lifecycle handlers: pickup, completion, enhancement.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ridepool/internal/modules/assignment"
	"ridepool/internal/modules/dispatch"
	"ridepool/internal/types"
)

type AssignmentHandler struct {
	svc    *assignment.Service
	engine *dispatch.Engine
}

func NewAssignmentHandler(svc *assignment.Service, engine *dispatch.Engine) *AssignmentHandler {
	return &AssignmentHandler{svc: svc, engine: engine}
}

type locationReq struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type completeReq struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
	// At is the actual drop-off time; omitted means now.
	At *time.Time `json:"at,omitempty"`
}

func (r completeReq) actual() time.Time {
	if r.At == nil {
		return time.Time{}
	}
	return *r.At
}

func (h *AssignmentHandler) Get(c *gin.Context) {
	a, err := h.svc.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"assignment_id":     a.ID,
		"driver_id":         a.DriverID,
		"passenger_id":      a.PassengerID,
		"trip_id":           a.TripID,
		"status":            a.Status,
		"estimated_pickup":  a.EstimatedPickup,
		"estimated_dropoff": a.EstimatedDropoff,
	})
}

func (h *AssignmentHandler) Pickup(c *gin.Context) {
	err := h.svc.ConfirmPickup(c.Request.Context(), assignment.PickupCommand{
		AssignmentID: types.ID(c.Param("id")),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": assignment.StatusInProgress})
}

func (h *AssignmentHandler) Complete(c *gin.Context) {
	var req completeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	err := h.svc.CompleteAssignment(c.Request.Context(), assignment.CompleteCommand{
		AssignmentID:  types.ID(c.Param("id")),
		At:            types.Point{Lat: req.Lat, Lng: req.Lng},
		ActualDropoff: req.actual(),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": assignment.StatusCompleted})
}

func (h *AssignmentHandler) Cancel(c *gin.Context) {
	err := h.svc.CancelAssignment(c.Request.Context(), assignment.CancelCommand{
		AssignmentID: types.ID(c.Param("id")),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": assignment.StatusCancelled})
}

// Enhance handles POST /api/assignments/:id/enhance: try to fill the
// assignment's empty seats with a compatible unassigned passenger.
func (h *AssignmentHandler) Enhance(c *gin.Context) {
	attached, err := h.engine.FindAndEnhanceTrip(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"attached_assignment_id": attached})
}

// CompleteTrip finishes a shared run and kicks a background dispatch round
// so the freed driver can pick up a chained ride right away.
func (h *AssignmentHandler) CompleteTrip(c *gin.Context) {
	var req completeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	driverID, err := h.svc.CompleteTrip(c.Request.Context(), assignment.CompleteTripCommand{
		TripID:        types.ID(c.Param("id")),
		At:            types.Point{Lat: req.Lat, Lng: req.Lng},
		ActualDropoff: req.actual(),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}

	go func() {
		_, _ = h.engine.RunDispatchCycle(context.Background(), nil)
	}()

	writeJSON(c, http.StatusOK, gin.H{"status": assignment.StatusCompleted, "driver_id": driverID})
}
