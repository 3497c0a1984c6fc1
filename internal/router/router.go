package router // package router defines how HTTP routes are registered for the API

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/donation-market/internal/handler"    // handlers implementing each endpoint
	"github.com/iliyamo/donation-market/internal/middleware" // JWT authentication and authorization
	"github.com/iliyamo/donation-market/internal/policy"
)

// ErrorHandler renders every error as {"error": message}.  Errors that are
// not *echo.HTTPError are logged and hidden behind a generic 500.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	var msg any = "internal server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		msg = he.Message
		if he.Internal != nil {
			c.Logger().Debugf("%s %s: %v", c.Request().Method, c.Path(), he.Internal)
		}
	} else {
		c.Logger().Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
	}
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, echo.Map{"error": msg})
	}
	if err != nil {
		c.Logger().Error(err)
	}
}

// RegisterRoutes registers routes that need no authentication: the health
// check and the uploaded photos.
func RegisterRoutes(e *echo.Echo, db *sql.DB, uploadDir string) {
	// Map GET /healthz to the Health handler.  Load balancers use it to
	// check the service and its database.
	e.GET("/healthz", handler.Health(db))
	e.Static(handler.ImagesPrefix, uploadDir)
}

// selfFromParam resolves the client id carried in a path parameter.
func selfFromParam(name string) middleware.ResourceResolver {
	return func(c echo.Context) (policy.Resource, error) {
		id, err := strconv.ParseUint(c.Param(name), 10, 64)
		if err != nil || id == 0 {
			return policy.Resource{}, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
		}
		return policy.Owned(id), nil
	}
}

// RegisterAuth registers sign-in, sign-up and account routes.  The login
// routes sit behind loginLimit, a stricter rate limiter.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, u *handler.UserHandler, jwtSecret string, loginLimit echo.MiddlewareFunc) {
	e.POST("/login", a.Login, loginLimit)
	e.POST("/loginWithGoogle", a.LoginWithGoogle, loginLimit)
	e.POST("/users", a.Register)

	auth := middleware.JWTAuth(jwtSecret)
	self := middleware.Authorize(policy.SelfOrAdmin, selfFromParam("id"))
	e.GET("/users/me", u.Me, auth)
	e.GET("/users", u.List, auth, middleware.RequireAdmin())
	e.GET("/users/:id", u.Get, auth, self)
	e.PATCH("/users/:id", u.Update, auth, self)
	e.DELETE("/users/:id", u.Delete, auth, self)
}
