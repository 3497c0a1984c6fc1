package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/donation-market/internal/auth"
	"github.com/iliyamo/donation-market/internal/middleware"
	"github.com/iliyamo/donation-market/internal/policy"
	"github.com/iliyamo/donation-market/internal/repository"
	"github.com/iliyamo/donation-market/internal/service"
)

// respondError maps domain errors to HTTP statuses.  Unclassified errors
// are logged and answered with a generic 500 so driver messages never reach
// clients.
func respondError(c echo.Context, err error) error {
	var he *echo.HTTPError
	var ve validator.ValidationErrors
	switch {
	case errors.As(err, &he):
		return he
	case errors.As(err, &ve):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation failed", "fields": fieldErrors(ve)})
	case errors.Is(err, service.ErrAlreadyReserved):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidCredentials):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	case errors.Is(err, service.ErrInvalidInput):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": strings.TrimPrefix(err.Error(), service.ErrInvalidInput.Error()+": ")})
	case errors.Is(err, repository.ErrNoChange):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "no fields to update"})
	case errors.Is(err, auth.ErrGoogleDisabled):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": err.Error()})
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()})
	case errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, repository.ErrDuplicate):
		return c.JSON(http.StatusConflict, echo.Map{"error": "already exists"})
	}
	c.Logger().Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
}

func fieldErrors(ve validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(ve))
	for _, fe := range ve {
		out[fe.Field()] = fe.Tag()
	}
	return out
}

// getActor returns the authenticated caller stored by JWTAuth.
func getActor(c echo.Context) (policy.Actor, error) {
	a, ok := middleware.ActorFrom(c)
	if !ok {
		return policy.Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	return a, nil
}

// parseID reads a positive numeric path parameter.
func parseID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

// queryID reads an optional positive numeric query parameter.
func queryID(c echo.Context, name string) (uint64, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

// pageFrom reads page and limit; missing or invalid values fall back to
// the defaults.
func pageFrom(c echo.Context) repository.Page {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	return repository.Page{Page: page, Limit: limit}.Normalize()
}

func listJSON[T any](c echo.Context, res repository.Result[T], pg repository.Page) error {
	return c.JSON(http.StatusOK, echo.Map{
		"rows":  res.Rows,
		"total": res.Total,
		"page":  pg.Page,
		"limit": pg.Limit,
	})
}

// bindValid binds the request into req and runs the validator.
func bindValid(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return c.Validate(req)
}

func isMultipart(c echo.Context) bool {
	return strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm)
}

// formValue returns a pointer to a submitted form field, nil when absent.
func formValue(c echo.Context, key string) (*string, error) {
	params, err := c.FormParams()
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid form")
	}
	vals, ok := params[key]
	if !ok || len(vals) == 0 {
		return nil, nil
	}
	v := vals[0]
	return &v, nil
}

func formInt(c echo.Context, key string) (*int, error) {
	s, err := formValue(c, key)
	if err != nil || s == nil {
		return nil, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(*s))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+key)
	}
	return &n, nil
}

func formBool(c echo.Context, key string) (*bool, error) {
	s, err := formValue(c, key)
	if err != nil || s == nil {
		return nil, err
	}
	b, err := strconv.ParseBool(strings.TrimSpace(*s))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+key)
	}
	return &b, nil
}

// formIDs reads a category list sent as repeated fields, as a comma
// separated string or as a JSON array.  ok is false when the field is absent.
func formIDs(c echo.Context, key string) (ids []uint64, ok bool, err error) {
	params, err := c.FormParams()
	if err != nil {
		return nil, false, echo.NewHTTPError(http.StatusBadRequest, "invalid form")
	}
	vals := append(params[key], params[key+"[]"]...)
	if len(vals) == 0 {
		return nil, false, nil
	}
	ids = make([]uint64, 0, len(vals))
	for _, v := range vals {
		v = strings.Trim(strings.TrimSpace(v), "[]")
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseUint(part, 10, 64)
			if err != nil || id == 0 {
				return nil, true, echo.NewHTTPError(http.StatusBadRequest, "invalid "+key)
			}
			ids = append(ids, id)
		}
	}
	return ids, true, nil
}
