// README: Dispatch handler — triggers a planning round over the current
// snapshot and returns the cycle report.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ridepool/internal/modules/dispatch"
)

type DispatchHandler struct {
	engine *dispatch.Engine
}

func NewDispatchHandler(engine *dispatch.Engine) *DispatchHandler {
	return &DispatchHandler{engine: engine}
}

// Run handles POST /api/dispatch/run. An optional ?date=2006-01-02 restricts
// the round to passengers whose window starts that day.
func (h *DispatchHandler) Run(c *gin.Context) {
	var day *time.Time
	if raw := c.Query("date"); raw != "" {
		d, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid date, want YYYY-MM-DD")
			return
		}
		day = &d
	}

	rep, err := h.engine.RunDispatchCycle(c.Request.Context(), day)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "dispatch cycle failed")
		return
	}
	writeJSON(c, http.StatusOK, rep)
}
