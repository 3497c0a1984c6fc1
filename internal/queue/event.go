// Package queue defines message payloads exchanged over the message broker
// and the publisher and consumer that move them.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/donation-market/internal/notify"
)

// Event kinds.
const (
	ReservationCreated = "reservation.created"
	ReservationUpdated = "reservation.updated"
	ReservationDeleted = "reservation.deleted"
)

// ReservationEvent is published after a reservation write commits.  It
// carries enough for the consumer to notify users without querying the
// database.
type ReservationEvent struct {
	Kind          string    `json:"kind"`
	ReservationID uint64    `json:"reservationId"`
	PostID        uint64    `json:"postId"`
	PostTitle     string    `json:"postTitle"`
	ClientID      uint64    `json:"clientId"`
	OwnerID       uint64    `json:"ownerId"`
	Status        string    `json:"status"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// Recipients returns the users told about ev: the post owner always, and
// the reserving client when their reservation was changed.
func (ev ReservationEvent) Recipients() []uint64 {
	out := []uint64{ev.OwnerID}
	if ev.Kind == ReservationUpdated && ev.ClientID != ev.OwnerID {
		out = append(out, ev.ClientID)
	}
	return out
}

// Deliver pushes ev to its recipients through n.
func Deliver(ctx context.Context, n notify.Notifier, ev ReservationEvent) error {
	msg := notify.Message{Type: ev.Kind, Data: ev}
	var errs []error
	for _, uid := range ev.Recipients() {
		if err := n.Notify(ctx, uid, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Publisher accepts reservation events.  The service layer publishes through
// it without knowing whether a broker sits in between.
type Publisher interface {
	Publish(ctx context.Context, ev ReservationEvent) error
}

// DirectPublisher delivers events in-process, used when no broker is
// configured.
type DirectPublisher struct {
	Notifier notify.Notifier
}

func (p DirectPublisher) Publish(ctx context.Context, ev ReservationEvent) error {
	return Deliver(ctx, p.Notifier, ev)
}
