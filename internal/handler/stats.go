package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/donation-market/internal/repository"
)

// Stats handles GET /stats (administrators).
func Stats(repo *repository.StatsRepo) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, err := repo.Totals(c.Request().Context())
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, s)
	}
}
