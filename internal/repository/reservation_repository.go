package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/donation-market/internal/model"
)

// ReservationRepo provides CRUD operations for reservations.  Methods with a
// Tx suffix run inside a caller-owned transaction; the caller must commit or
// roll back.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

// ReservationFilter narrows List.
type ReservationFilter struct {
	Status   string
	Username string // substring of the reserving client's username
	City     string // substring of the post's city
	ClientID uint64
	PostID   uint64
}

// ReservationPatch lists the columns an update may touch.
type ReservationPatch struct {
	Status *string
	Date   *time.Time
}

const reservationDetailSQL = `SELECT r.id, r.post_id, r.client_id, r.reservation_date, r.reservation_status,
	p.title, p.client_id, c.username, a.city
	FROM reservation r
	JOIN post p    ON p.id = r.post_id
	JOIN client c  ON c.id = r.client_id
	LEFT JOIN address a ON a.id = p.address_id`

func scanReservationDetail(s scanner) (*model.ReservationDetail, error) {
	var (
		d    model.ReservationDetail
		city sql.NullString
	)
	if err := s.Scan(&d.ID, &d.PostID, &d.ClientID, &d.Date, &d.Status,
		&d.PostTitle, &d.PostOwnerID, &d.Username, &city); err != nil {
		return nil, err
	}
	d.City = nullString(city)
	return &d, nil
}

// CountConfirmedTx counts the confirmed reservations of a post.
func (r *ReservationRepo) CountConfirmedTx(ctx context.Context, tx *sql.Tx, postID uint64) (int, error) {
	return countConfirmedTx(ctx, tx, postID)
}

// ExistsForClientTx reports whether the client already holds a reservation
// on the post, whatever its status.
func (r *ReservationRepo) ExistsForClientTx(ctx context.Context, tx *sql.Tx, postID, clientID uint64) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx,
		`SELECT 1 FROM reservation WHERE post_id = ? AND client_id = ? LIMIT 1`, postID, clientID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// InsertTx stores res and sets its generated ID.
func (r *ReservationRepo) InsertTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) error {
	if res.Date.IsZero() {
		res.Date = now()
	}
	if res.Status == "" {
		res.Status = model.ReservationConfirmed
	}
	result, err := tx.ExecContext(ctx,
		`INSERT INTO reservation (post_id, client_id, reservation_date, reservation_status) VALUES (?, ?, ?, ?)`,
		res.PostID, res.ClientID, res.Date, res.Status)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	res.ID = uint64(id)
	return nil
}

// GetTx reads a reservation inside tx.
func (r *ReservationRepo) GetTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Reservation, error) {
	var res model.Reservation
	err := tx.QueryRowContext(ctx,
		`SELECT id, post_id, client_id, reservation_date, reservation_status FROM reservation WHERE id = ?`, id,
	).Scan(&res.ID, &res.PostID, &res.ClientID, &res.Date, &res.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// GetByID returns a reservation with its post and client details.
func (r *ReservationRepo) GetByID(ctx context.Context, id uint64) (*model.ReservationDetail, error) {
	d, err := scanReservationDetail(r.db.QueryRowContext(ctx, reservationDetailSQL+` WHERE r.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReservationNotFound
	}
	return d, err
}

// List returns one page of reservations, most recent first.
func (r *ReservationRepo) List(ctx context.Context, f ReservationFilter, pg Page) (Result[model.ReservationDetail], error) {
	pg = pg.Normalize()
	var cond conditions
	if f.Status != "" {
		cond.add("r.reservation_status = ?", f.Status)
	}
	if f.ClientID != 0 {
		cond.add("r.client_id = ?", f.ClientID)
	}
	if f.PostID != 0 {
		cond.add("r.post_id = ?", f.PostID)
	}
	cond.contains("c.username", strings.TrimSpace(f.Username))
	cond.upperContains("a.city", strings.TrimSpace(f.City))

	out := Result[model.ReservationDetail]{Rows: make([]model.ReservationDetail, 0)}
	countSQL := `SELECT COUNT(*)
		FROM reservation r
		JOIN post p    ON p.id = r.post_id
		JOIN client c  ON c.id = r.client_id
		LEFT JOIN address a ON a.id = p.address_id
		WHERE ` + cond.sql()
	if err := r.db.QueryRowContext(ctx, countSQL, cond.args...).Scan(&out.Total); err != nil {
		return out, err
	}
	args := append(append([]any{}, cond.args...), pg.Limit, pg.Offset())
	rows, err := r.db.QueryContext(ctx,
		reservationDetailSQL+` WHERE `+cond.sql()+` ORDER BY r.reservation_date DESC, r.id DESC LIMIT ? OFFSET ?`,
		args...)
	if err != nil {
		return out, err
	}
	defer rows.Close()
	for rows.Next() {
		d, err := scanReservationDetail(rows)
		if err != nil {
			return out, err
		}
		out.Rows = append(out.Rows, *d)
	}
	return out, rows.Err()
}

// UpdateTx applies the non-nil fields of patch inside tx.
func (r *ReservationRepo) UpdateTx(ctx context.Context, tx *sql.Tx, id uint64, patch ReservationPatch) error {
	var a assignments
	setIf(&a, "reservation_status", patch.Status)
	if patch.Date != nil {
		a.set("reservation_date", patch.Date.UTC().Truncate(time.Second))
	}
	if a.empty() {
		return ErrNoChange
	}
	res, err := tx.ExecContext(ctx, `UPDATE reservation SET `+a.sql()+` WHERE id = ?`, append(a.args, id)...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// MySQL reports zero rows when values are unchanged, so confirm existence.
		if _, err := r.GetTx(ctx, tx, id); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a reservation.
func (r *ReservationRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM reservation WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrReservationNotFound
	}
	return nil
}
