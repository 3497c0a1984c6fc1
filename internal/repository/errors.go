// Package repository defines error types that are reused across multiple
// repositories.  These sentinel values allow higher layers such as services
// and handlers to distinguish between failure scenarios with errors.Is.
package repository

import (
	"errors"
	"fmt"
)

// ErrNotFound is the parent of every "row does not exist" error.  Entity
// specific errors wrap it so callers may test either.
var ErrNotFound = errors.New("not found")

var (
	ErrPostNotFound        = notFound("post not found")
	ErrClientNotFound      = notFound("client not found")
	ErrReservationNotFound = notFound("reservation not found")
	ErrCategoryNotFound    = notFound("category not found")
	ErrCommentNotFound     = notFound("comment not found")
	ErrAddressNotFound     = notFound("address not found")
)

// ErrForbidden is returned when the caller attempts an operation on a
// resource they may not touch.  Handlers translate it into 403.
var ErrForbidden = errors.New("forbidden")

// ErrConflict signals that an operation cannot proceed because of the
// current state of the data.  Handlers translate it into 409.
var ErrConflict = errors.New("conflict")

// ErrCategoryInUse is returned when deleting a category would leave some
// post without any category.
var ErrCategoryInUse = fmt.Errorf("%w: category is the only category of some posts", ErrConflict)

// ErrDuplicate is returned when a unique column (username, email, category
// name, client/post reservation pair) already holds the value.
var ErrDuplicate = errors.New("duplicate")

// ErrNoChange indicates an update request that carried no field to change.
var ErrNoChange = errors.New("no change")

type notFoundError struct{ msg string }

func notFound(msg string) error { return &notFoundError{msg: msg} }

func (e *notFoundError) Error() string { return e.msg }

func (e *notFoundError) Is(target error) bool { return target == ErrNotFound }
