package middleware // middleware contains reusable HTTP middleware functions

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/donation-market/internal/policy"
	"github.com/iliyamo/donation-market/internal/utils"
)

// actorKey is the echo context key holding the authenticated policy.Actor.
const actorKey = "actor"

// JWTAuth returns an Echo middleware that validates a Bearer access token
// and stores the caller as a policy.Actor in the request context.  Handlers
// read it back with ActorFrom.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			claims, err := utils.ParseAccessToken(secret, strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")))
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			c.Set(actorKey, policy.Actor{ID: claims.ID, Email: claims.Email, IsAdmin: claims.IsAdmin})
			return next(c)
		}
	}
}

// ActorFrom returns the authenticated caller, if any.
func ActorFrom(c echo.Context) (policy.Actor, bool) {
	a, ok := c.Get(actorKey).(policy.Actor)
	return a, ok
}
