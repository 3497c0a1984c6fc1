package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/donation-market/internal/handler"
	"github.com/iliyamo/donation-market/internal/middleware"
)

// RegisterReference registers the reference data (categories, cities) and
// the administrator endpoints that maintain it.  The public reads go
// through cache, the Redis response cache.
func RegisterReference(e *echo.Echo, cat *handler.CategoryHandler, addr *handler.AddressHandler,
	stats echo.HandlerFunc, jwtSecret string, cache echo.MiddlewareFunc) {
	e.GET("/productType", cat.List, cache)
	e.GET("/productType/:id", cat.Get)
	e.GET("/getAllCities", addr.Cities, cache)

	// Route level middleware rather than a group: a group on "" would
	// put every unknown path behind the admin check.
	admin := []echo.MiddlewareFunc{middleware.JWTAuth(jwtSecret), middleware.RequireAdmin()}
	e.POST("/productType", cat.Create, admin...)
	e.PATCH("/productType/:id", cat.Rename, admin...)
	e.DELETE("/productType/:id", cat.Delete, admin...)
	e.POST("/addresses/import", addr.Import, admin...)
	e.GET("/stats", stats, admin...)
}
