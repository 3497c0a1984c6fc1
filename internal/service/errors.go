// Package service implements the business rules that span repositories:
// reservation capacity, post ownership and account management.
package service

import (
	"errors"
	"fmt"

	"github.com/iliyamo/donation-market/internal/policy"
	"github.com/iliyamo/donation-market/internal/repository"
)

// ErrInvalidInput marks malformed requests.  Handlers answer 400.
var ErrInvalidInput = errors.New("invalid input")

// ErrInvalidCredentials is returned by logins that do not match an account.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrAlreadyReserved is returned when the client already holds a
// reservation on the post.  Handlers answer 401, as existing clients expect.
var ErrAlreadyReserved = errors.New("you already reserved this post")

// Rule violations wrap the repository sentinels so handlers map them with
// errors.Is and still show a precise message.
var (
	ErrOwnPost         = fmt.Errorf("%w: you cannot reserve your own post", repository.ErrForbidden)
	ErrReserveForOther = fmt.Errorf("%w: only administrators may reserve for another client", repository.ErrForbidden)
	ErrPostUnavailable = fmt.Errorf("%w: post is unavailable", repository.ErrNotFound)
	ErrCapacityReached = fmt.Errorf("%w: no places remaining", repository.ErrConflict)
	ErrInvalidStatus   = fmt.Errorf("%w: reservation_status must be confirmed or cancelled", repository.ErrConflict)
	ErrDateInPast      = fmt.Errorf("%w: reservation_date cannot be in the past", repository.ErrConflict)
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidInput}, args...)...)
}

// authorize turns a refused policy decision into an ErrForbidden carrying
// the reason.
func authorize(p policy.Policy, a policy.Actor, r policy.Resource) error {
	if d := p(a, r); !d.Allowed {
		return fmt.Errorf("%w: %s", repository.ErrForbidden, d.Reason)
	}
	return nil
}
