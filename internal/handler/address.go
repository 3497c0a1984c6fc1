package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/donation-market/internal/importer"
	"github.com/iliyamo/donation-market/internal/repository"
)

// AddressHandler exposes the city reference list.
type AddressHandler struct {
	Addresses *repository.AddressRepo
	Importer  *importer.PostalImporter
	// Purge runs after a successful import; may be nil.
	Purge func(c echo.Context)
}

// Cities handles GET /getAllCities?q=&limit=.
func (h *AddressHandler) Cities(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	rows, err := h.Addresses.ListCities(c.Request().Context(), strings.TrimSpace(c.QueryParam("q")), limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, rows)
}

// Import handles POST /addresses/import (administrators).  It pulls the
// upstream commune list synchronously and reports how many rows changed.
func (h *AddressHandler) Import(c echo.Context) error {
	if h.Importer == nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "address import is not configured"})
	}
	n, err := h.Importer.Run(c.Request().Context())
	if err != nil {
		c.Logger().Errorf("address import: %v", err)
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "address import failed"})
	}
	if h.Purge != nil {
		h.Purge(c)
	}
	return c.JSON(http.StatusOK, echo.Map{"imported": n})
}
