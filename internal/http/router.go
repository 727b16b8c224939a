// README: HTTP router registration.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ridepool/internal/http/handlers"
	"ridepool/internal/http/middleware"
	"ridepool/internal/modules/assignment"
	"ridepool/internal/modules/dispatch"
	"ridepool/internal/modules/location"
)

func NewRouter(log *slog.Logger, engine *dispatch.Engine, assignments *assignment.Service,
	locations *location.Service) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(log), middleware.Logging(log))

	dispatchHandler := handlers.NewDispatchHandler(engine)
	r.POST("/api/dispatch/run", dispatchHandler.Run)

	assignmentHandler := handlers.NewAssignmentHandler(assignments, engine)
	r.GET("/api/assignments/:id", assignmentHandler.Get)
	r.POST("/api/assignments/:id/pickup", assignmentHandler.Pickup)
	r.POST("/api/assignments/:id/complete", assignmentHandler.Complete)
	r.POST("/api/assignments/:id/cancel", assignmentHandler.Cancel)
	r.POST("/api/assignments/:id/enhance", assignmentHandler.Enhance)
	r.POST("/api/trips/:id/complete", assignmentHandler.CompleteTrip)

	locationHandler := handlers.NewLocationHandler(locations)
	r.PUT("/api/drivers/:id/location", locationHandler.Update)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	return r
}
