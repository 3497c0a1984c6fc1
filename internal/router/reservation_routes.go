package router

// Reservation routes.  Every route needs a token; who may see or change a
// reservation is decided per request by the reservation service, except
// the administrator listing.

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/donation-market/internal/handler"
	"github.com/iliyamo/donation-market/internal/middleware"
	"github.com/iliyamo/donation-market/internal/policy"
)

// RegisterReservations registers reservation routes.
func RegisterReservations(e *echo.Echo, h *handler.ReservationHandler, jwtSecret string) {
	g := e.Group("/reservations")
	auth := middleware.JWTAuth(jwtSecret)

	g.POST("", h.Create, auth)
	g.GET("", h.List, auth, middleware.RequireAdmin())
	// PATCH carries the reservation id in the body
	g.PATCH("", h.Update, auth)
	g.GET("/me", h.Mine, auth)
	g.GET("/client/:id", h.ByClient, auth, middleware.Authorize(policy.SelfOrAdmin, selfFromParam("id")))
	g.GET("/post/:id", h.ByPost, auth)
	g.GET("/:id", h.Get, auth)
	g.DELETE("/:id", h.Delete, auth)
}
