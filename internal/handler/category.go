package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/donation-market/internal/config"
	"github.com/iliyamo/donation-market/internal/middleware"
	"github.com/iliyamo/donation-market/internal/repository"
)

// CategoryHandler serves product types.  Writes purge the response cache
// that fronts the public list.
type CategoryHandler struct {
	Categories *repository.CategoryRepo
	Cache      config.CacheConfig
	Redis      *redis.Client
}

type categoryReq struct {
	Name string `json:"name_category" validate:"required,max=100"`
}

// List handles GET /productType.
func (h *CategoryHandler) List(c echo.Context) error {
	cats, err := h.Categories.List(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, cats)
}

// Get handles GET /productType/:id.
func (h *CategoryHandler) Get(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	cat, err := h.Categories.GetByID(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, cat)
}

// Create handles POST /productType (administrators).
func (h *CategoryHandler) Create(c echo.Context) error {
	var req categoryReq
	if err := bindValid(c, &req); err != nil {
		return respondError(c, err)
	}
	cat, err := h.Categories.Create(c.Request().Context(), strings.TrimSpace(req.Name))
	if err != nil {
		return respondError(c, err)
	}
	h.purge(c)
	return c.JSON(http.StatusCreated, cat)
}

// Rename handles PATCH /productType/:id (administrators).
func (h *CategoryHandler) Rename(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req categoryReq
	if err := bindValid(c, &req); err != nil {
		return respondError(c, err)
	}
	name := strings.TrimSpace(req.Name)
	if err := h.Categories.Rename(c.Request().Context(), id, name); err != nil {
		return respondError(c, err)
	}
	h.purge(c)
	return c.JSON(http.StatusOK, echo.Map{"id": id, "name_category": name})
}

// Delete handles DELETE /productType/:id (administrators).  Posts keep
// existing; only their link to the category goes.  409 while some post has
// no other category.
func (h *CategoryHandler) Delete(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.Categories.Delete(c.Request().Context(), id); err != nil {
		return respondError(c, err)
	}
	h.purge(c)
	return c.NoContent(http.StatusNoContent)
}

func (h *CategoryHandler) purge(c echo.Context) {
	if err := middleware.PurgeCache(c.Request().Context(), h.Cache, h.Redis); err != nil {
		c.Logger().Warnf("cache purge: %v", err)
	}
}
