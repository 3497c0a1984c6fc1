package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/donation-market/internal/model"
	"github.com/iliyamo/donation-market/internal/policy"
	"github.com/iliyamo/donation-market/internal/queue"
	"github.com/iliyamo/donation-market/internal/repository"
)

// ReservationService enforces the reservation rules.  Every write runs in a
// transaction that first locks the post row, so two requests for the last
// place of a post are serialised and the capacity can never be exceeded.
type ReservationService struct {
	db           *sql.DB
	posts        *repository.PostRepo
	clients      *repository.ClientRepo
	reservations *repository.ReservationRepo
	events       queue.Publisher
	logger       echo.Logger
	now          func() time.Time
}

func NewReservationService(posts *repository.PostRepo, clients *repository.ClientRepo,
	reservations *repository.ReservationRepo, events queue.Publisher, logger echo.Logger) *ReservationService {
	return &ReservationService{
		db:           posts.DB(),
		posts:        posts,
		clients:      clients,
		reservations: reservations,
		events:       events,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// ReservationUpdate is a partial update.  Nil fields are left unchanged.
type ReservationUpdate struct {
	Status *string
	Date   *time.Time
}

// Create reserves a place of postID.  clientID lets an administrator
// reserve on behalf of another client; nil means the actor.
func (s *ReservationService) Create(ctx context.Context, actor policy.Actor, postID uint64, clientID *uint64) (*model.Reservation, error) {
	target := actor.ID
	if clientID != nil && *clientID != actor.ID {
		if !actor.IsAdmin {
			return nil, ErrReserveForOther
		}
		target = *clientID
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	post, err := s.posts.LockTx(ctx, tx, postID)
	if err != nil {
		return nil, err
	}
	ok, err := s.clients.ExistsTx(ctx, tx, target)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, repository.ErrClientNotFound
	}
	if post.ClientID == target {
		return nil, ErrOwnPost
	}
	if post.Status == model.PostUnavailable {
		return nil, ErrPostUnavailable
	}
	dup, err := s.reservations.ExistsForClientTx(ctx, tx, postID, target)
	if err != nil {
		return nil, err
	}
	if dup {
		return nil, ErrAlreadyReserved
	}
	confirmed, err := s.reservations.CountConfirmedTx(ctx, tx, postID)
	if err != nil {
		return nil, err
	}
	if confirmed >= post.NumberOfPlaces {
		return nil, ErrCapacityReached
	}

	res := &model.Reservation{
		PostID:   postID,
		ClientID: target,
		Date:     s.now().Truncate(time.Second),
		Status:   model.ReservationConfirmed,
	}
	if err := s.reservations.InsertTx(ctx, tx, res); err != nil {
		if s.posts.Dialect().IsDuplicate(err) {
			return nil, ErrAlreadyReserved
		}
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true

	s.publish(queue.ReservationCreated, res, post)
	return res, nil
}

// Update changes the status and/or date of a reservation.  Only its client
// or an administrator may do so.  Re-confirming a cancelled reservation
// needs a free place.
func (s *ReservationService) Update(ctx context.Context, actor policy.Actor, id uint64, in ReservationUpdate) (*model.Reservation, error) {
	if in.Status == nil && in.Date == nil {
		return nil, repository.ErrNoChange
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := s.reservations.GetTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(policy.SelfOrAdmin, actor, policy.Owned(res.ClientID)); err != nil {
		return nil, err
	}
	if in.Status != nil && !model.IsUpdatableStatus(*in.Status) {
		return nil, ErrInvalidStatus
	}
	if in.Date != nil && in.Date.Before(s.now().Truncate(time.Second)) {
		return nil, ErrDateInPast
	}

	post, err := s.posts.LockTx(ctx, tx, res.PostID)
	if err != nil {
		return nil, err
	}
	if in.Status != nil && *in.Status == model.ReservationConfirmed && res.Status != model.ReservationConfirmed {
		confirmed, err := s.reservations.CountConfirmedTx(ctx, tx, res.PostID)
		if err != nil {
			return nil, err
		}
		if confirmed >= post.NumberOfPlaces {
			return nil, ErrCapacityReached
		}
	}

	if err := s.reservations.UpdateTx(ctx, tx, id, repository.ReservationPatch{Status: in.Status, Date: in.Date}); err != nil {
		return nil, err
	}
	updated, err := s.reservations.GetTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true

	s.publish(queue.ReservationUpdated, updated, post)
	return updated, nil
}

// Delete removes a reservation.  The reserving client, the post owner and
// administrators may delete it.
func (s *ReservationService) Delete(ctx context.Context, actor policy.Actor, id uint64) error {
	d, err := s.reservations.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := authorize(policy.SelfOrAdmin, actor, policy.Owned(d.ClientID, d.PostOwnerID)); err != nil {
		return err
	}
	if err := s.reservations.Delete(ctx, id); err != nil {
		return err
	}
	s.publish(queue.ReservationDeleted, &d.Reservation, &model.Post{ID: d.PostID, Title: d.PostTitle, ClientID: d.PostOwnerID})
	return nil
}

// Get returns a reservation visible to its client, the post owner or an
// administrator.
func (s *ReservationService) Get(ctx context.Context, actor policy.Actor, id uint64) (*model.ReservationDetail, error) {
	d, err := s.reservations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(policy.SelfOrAdmin, actor, policy.Owned(d.ClientID, d.PostOwnerID)); err != nil {
		return nil, err
	}
	return d, nil
}

// List searches every reservation.  Callers restrict it to administrators.
func (s *ReservationService) List(ctx context.Context, f repository.ReservationFilter, pg repository.Page) (repository.Result[model.ReservationDetail], error) {
	return s.reservations.List(ctx, f, pg)
}

// ListForClient lists the reservations held by clientID.
func (s *ReservationService) ListForClient(ctx context.Context, actor policy.Actor, clientID uint64, f repository.ReservationFilter, pg repository.Page) (repository.Result[model.ReservationDetail], error) {
	if err := authorize(policy.SelfOrAdmin, actor, policy.Owned(clientID)); err != nil {
		return repository.Result[model.ReservationDetail]{}, err
	}
	f.ClientID = clientID
	return s.reservations.List(ctx, f, pg)
}

// ListForPost lists the reservations of a post for its owner.
func (s *ReservationService) ListForPost(ctx context.Context, actor policy.Actor, postID uint64, f repository.ReservationFilter, pg repository.Page) (repository.Result[model.ReservationDetail], error) {
	owner, err := s.posts.OwnerID(ctx, postID)
	if err != nil {
		return repository.Result[model.ReservationDetail]{}, err
	}
	if err := authorize(policy.SelfOrAdmin, actor, policy.Owned(owner)); err != nil {
		return repository.Result[model.ReservationDetail]{}, err
	}
	f.PostID = postID
	return s.reservations.List(ctx, f, pg)
}

// publish hands the event to the publisher without holding up the request.
// Failures are logged and dropped.
func (s *ReservationService) publish(kind string, res *model.Reservation, post *model.Post) {
	if s.events == nil {
		return
	}
	ev := queue.ReservationEvent{
		Kind:          kind,
		ReservationID: res.ID,
		PostID:        post.ID,
		PostTitle:     post.Title,
		ClientID:      res.ClientID,
		OwnerID:       post.ClientID,
		Status:        res.Status,
		OccurredAt:    s.now(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.events.Publish(ctx, ev); err != nil {
			s.logger.Warnf("reservation %d: %s notification dropped: %v", ev.ReservationID, kind, err)
		}
	}()
}
