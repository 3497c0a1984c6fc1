package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/donation-market/internal/repository"
	"github.com/iliyamo/donation-market/internal/service"
)

// UserHandler serves account management.
type UserHandler struct {
	Clients *service.ClientService
	Photos  *PhotoStore
}

func NewUserHandler(clients *service.ClientService, photos *PhotoStore) *UserHandler {
	return &UserHandler{Clients: clients, Photos: photos}
}

type updateUserReq struct {
	Username     *string `json:"username" validate:"omitempty,max=100"`
	Email        *string `json:"email" validate:"omitempty,email"`
	Password     *string `json:"password" validate:"omitempty,min=6"`
	Street       *string `json:"street"`
	StreetNumber *string `json:"street_number"`
	City         *string `json:"city"`
	PostalCode   *string `json:"postal_code"`
	IsAdmin      *bool   `json:"is_admin"`
}

// Me handles GET /users/me.
func (h *UserHandler) Me(c echo.Context) error {
	actor, err := getActor(c)
	if err != nil {
		return err
	}
	u, err := h.Clients.Get(c.Request().Context(), actor, actor.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, u)
}

// List handles GET /users (administrators).
func (h *UserHandler) List(c echo.Context) error {
	pg := pageFrom(c)
	res, err := h.Clients.List(c.Request().Context(), repository.ClientFilter{Username: c.QueryParam("username")}, pg)
	if err != nil {
		return respondError(c, err)
	}
	return listJSON(c, res, pg)
}

// Get handles GET /users/:id.
func (h *UserHandler) Get(c echo.Context) error {
	actor, err := getActor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	u, err := h.Clients.Get(c.Request().Context(), actor, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, u)
}

// Update handles PATCH /users/:id.  Only supplied fields change.
func (h *UserHandler) Update(c echo.Context) error {
	actor, err := getActor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	req, err := h.readUpdate(c)
	if err != nil {
		return respondError(c, err)
	}
	photo, err := h.Photos.Save(c, "photo")
	if err != nil {
		return respondError(c, err)
	}
	u, err := h.Clients.Update(c.Request().Context(), actor, id, service.ClientUpdate{
		Username:     req.Username,
		Email:        req.Email,
		Password:     req.Password,
		Street:       req.Street,
		StreetNumber: req.StreetNumber,
		City:         req.City,
		PostalCode:   req.PostalCode,
		Photo:        photo,
		IsAdmin:      req.IsAdmin,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *UserHandler) readUpdate(c echo.Context) (updateUserReq, error) {
	var req updateUserReq
	if !isMultipart(c) {
		if err := bindValid(c, &req); err != nil {
			return req, err
		}
		return req, nil
	}
	var err error
	for key, dst := range map[string]**string{
		"username":      &req.Username,
		"email":         &req.Email,
		"password":      &req.Password,
		"street":        &req.Street,
		"street_number": &req.StreetNumber,
		"city":          &req.City,
		"postal_code":   &req.PostalCode,
	} {
		if *dst, err = formValue(c, key); err != nil {
			return req, err
		}
	}
	if req.IsAdmin, err = formBool(c, "is_admin"); err != nil {
		return req, err
	}
	return req, c.Validate(&req)
}

// Delete handles DELETE /users/:id.
func (h *UserHandler) Delete(c echo.Context) error {
	actor, err := getActor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.Clients.Delete(c.Request().Context(), actor, id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
