package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/donation-market/internal/service"
)

// AuthHandler serves sign-in and sign-up.
type AuthHandler struct {
	Clients *service.ClientService
	Photos  *PhotoStore
}

func NewAuthHandler(clients *service.ClientService, photos *PhotoStore) *AuthHandler {
	return &AuthHandler{Clients: clients, Photos: photos}
}

// ----- DTOs -----

type loginReq struct {
	Email    string `json:"email" form:"email" validate:"required,email"`
	Password string `json:"password" form:"password" validate:"required"`
}

type googleLoginReq struct {
	IDToken string `json:"idToken" form:"idToken" validate:"required"`
}

type registerReq struct {
	Username     string `json:"username" form:"username" validate:"required,max=100"`
	Email        string `json:"email" form:"email" validate:"required,email"`
	Password     string `json:"password" form:"password" validate:"required,min=6"`
	Street       string `json:"street" form:"street"`
	StreetNumber string `json:"street_number" form:"street_number"`
	City         string `json:"city" form:"city" validate:"required_with=PostalCode"`
	PostalCode   string `json:"postal_code" form:"postal_code" validate:"required_with=City"`
}

// Login handles POST /login.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bindValid(c, &req); err != nil {
		return respondError(c, err)
	}
	sess, err := h.Clients.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, sess)
}

// LoginWithGoogle handles POST /loginWithGoogle.
func (h *AuthHandler) LoginWithGoogle(c echo.Context) error {
	var req googleLoginReq
	if err := bindValid(c, &req); err != nil {
		return respondError(c, err)
	}
	sess, err := h.Clients.LoginWithGoogle(c.Request().Context(), strings.TrimSpace(req.IDToken))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, sess)
}

// Register handles POST /users.  The body is JSON or multipart; a
// multipart request may carry a "photo" file.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := bindValid(c, &req); err != nil {
		return respondError(c, err)
	}
	photo, err := h.Photos.Save(c, "photo")
	if err != nil {
		return respondError(c, err)
	}
	client, err := h.Clients.Register(c.Request().Context(), service.RegisterInput{
		Username:     req.Username,
		Email:        req.Email,
		Password:     req.Password,
		Street:       req.Street,
		StreetNumber: req.StreetNumber,
		City:         req.City,
		PostalCode:   req.PostalCode,
		Photo:        photo,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, client)
}
