package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/donation-market/internal/policy"
)

// ResourceResolver derives the resource a request targets, typically from
// a path parameter.  Returning an error aborts the request with that error.
type ResourceResolver func(c echo.Context) (policy.Resource, error)

// Authorize runs p against the caller and the resolved resource and answers
// 403 with the policy's reason when it refuses.  It must run after JWTAuth.
// A nil resolver means the policy does not look at the resource.
func Authorize(p policy.Policy, resolve ResourceResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor, ok := ActorFrom(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			var res policy.Resource
			if resolve != nil {
				r, err := resolve(c)
				if err != nil {
					return err
				}
				res = r
			}
			if d := p(actor, res); !d.Allowed {
				return c.JSON(http.StatusForbidden, echo.Map{"error": d.Reason})
			}
			return next(c)
		}
	}
}

// RequireAdmin allows administrators only.
func RequireAdmin() echo.MiddlewareFunc { return Authorize(policy.Admin, nil) }
