package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/donation-market/internal/repository"
	"github.com/iliyamo/donation-market/internal/service"
)

// ReservationHandler serves reservations.
type ReservationHandler struct {
	Reservations *service.ReservationService
}

func NewReservationHandler(r *service.ReservationService) *ReservationHandler {
	return &ReservationHandler{Reservations: r}
}

type createReservationReq struct {
	PostID   uint64  `json:"post_id" validate:"required"`
	ClientID *uint64 `json:"client_id" validate:"omitempty,min=1"`
}

type updateReservationReq struct {
	ID     uint64     `json:"id" validate:"required"`
	Status *string    `json:"reservation_status"`
	Date   *time.Time `json:"reservation_date"`
}

// Create handles POST /reservations.
func (h *ReservationHandler) Create(c echo.Context) error {
	actor, err := getActor(c)
	if err != nil {
		return err
	}
	var req createReservationReq
	if err := bindValid(c, &req); err != nil {
		return respondError(c, err)
	}
	res, err := h.Reservations.Create(c.Request().Context(), actor, req.PostID, req.ClientID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

func reservationFilterFrom(c echo.Context) repository.ReservationFilter {
	return repository.ReservationFilter{
		Status:   strings.ToLower(strings.TrimSpace(c.QueryParam("status"))),
		Username: c.QueryParam("username"),
		City:     c.QueryParam("city"),
	}
}

// List handles GET /reservations (administrators).
func (h *ReservationHandler) List(c echo.Context) error {
	pg := pageFrom(c)
	res, err := h.Reservations.List(c.Request().Context(), reservationFilterFrom(c), pg)
	if err != nil {
		return respondError(c, err)
	}
	return listJSON(c, res, pg)
}

// Mine handles GET /reservations/me.
func (h *ReservationHandler) Mine(c echo.Context) error {
	actor, err := getActor(c)
	if err != nil {
		return err
	}
	pg := pageFrom(c)
	res, err := h.Reservations.ListForClient(c.Request().Context(), actor, actor.ID, reservationFilterFrom(c), pg)
	if err != nil {
		return respondError(c, err)
	}
	return listJSON(c, res, pg)
}

// ByClient handles GET /reservations/client/:id.
func (h *ReservationHandler) ByClient(c echo.Context) error {
	actor, err := getActor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	pg := pageFrom(c)
	res, err := h.Reservations.ListForClient(c.Request().Context(), actor, id, reservationFilterFrom(c), pg)
	if err != nil {
		return respondError(c, err)
	}
	return listJSON(c, res, pg)
}

// ByPost handles GET /reservations/post/:id.
func (h *ReservationHandler) ByPost(c echo.Context) error {
	actor, err := getActor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	pg := pageFrom(c)
	res, err := h.Reservations.ListForPost(c.Request().Context(), actor, id, reservationFilterFrom(c), pg)
	if err != nil {
		return respondError(c, err)
	}
	return listJSON(c, res, pg)
}

// Get handles GET /reservations/:id.
func (h *ReservationHandler) Get(c echo.Context) error {
	actor, err := getActor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	d, err := h.Reservations.Get(c.Request().Context(), actor, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

// Update handles PATCH /reservations.  The reservation id travels in the
// body together with the fields to change.
func (h *ReservationHandler) Update(c echo.Context) error {
	actor, err := getActor(c)
	if err != nil {
		return err
	}
	var req updateReservationReq
	if err := bindValid(c, &req); err != nil {
		return respondError(c, err)
	}
	if req.Status != nil {
		s := strings.ToLower(strings.TrimSpace(*req.Status))
		req.Status = &s
	}
	res, err := h.Reservations.Update(c.Request().Context(), actor, req.ID, service.ReservationUpdate{
		Status: req.Status,
		Date:   req.Date,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Delete handles DELETE /reservations/:id.
func (h *ReservationHandler) Delete(c echo.Context) error {
	actor, err := getActor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.Reservations.Delete(c.Request().Context(), actor, id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
