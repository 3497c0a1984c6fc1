package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/donation-market/internal/model"
)

// ClientRepo persists application users.
type ClientRepo struct {
	db      *sql.DB
	dialect Dialect
}

// NewClientRepo returns a ClientRepo bound to db.
func NewClientRepo(db *sql.DB, d Dialect) *ClientRepo { return &ClientRepo{db: db, dialect: d} }

// ClientFilter narrows List.  Username is a case-insensitive substring.
type ClientFilter struct {
	Username string
}

// ClientPatch lists the columns a partial update may touch.  Nil fields are
// left unchanged.
type ClientPatch struct {
	Username     *string
	Email        *string
	PasswordHash *string
	Street       *string
	StreetNumber *string
	AddressID    *uint64
	Photo        *string
	IsAdmin      *bool
}

const clientColumns = `c.id, c.username, c.email, c.password_hash, c.street, c.street_number,
	c.address_id, a.city, a.postal_code, c.is_admin, c.registration_date, c.photo, c.google_id
	FROM client c LEFT JOIN address a ON a.id = c.address_id`

type scanner interface {
	Scan(dest ...any) error
}

func scanClient(s scanner) (*model.Client, error) {
	var (
		c                      model.Client
		addressID              sql.NullInt64
		city, postal           sql.NullString
		photo, googleID        sql.NullString
	)
	if err := s.Scan(&c.ID, &c.Username, &c.Email, &c.PasswordHash, &c.Street, &c.StreetNumber,
		&addressID, &city, &postal, &c.IsAdmin, &c.RegistrationDate, &photo, &googleID); err != nil {
		return nil, err
	}
	if addressID.Valid {
		id := uint64(addressID.Int64)
		c.AddressID = &id
	}
	c.City = nullString(city)
	c.PostalCode = nullString(postal)
	c.Photo = nullString(photo)
	c.GoogleID = nullString(googleID)
	return &c, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// Create inserts c and sets its generated ID.  Email is normalised to lower
// case.  A username, email or Google id collision returns ErrDuplicate.
func (r *ClientRepo) Create(ctx context.Context, c *model.Client) error {
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	if c.RegistrationDate.IsZero() {
		c.RegistrationDate = now()
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO client (username, email, password_hash, street, street_number, address_id, is_admin, registration_date, photo, google_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Username, c.Email, c.PasswordHash, c.Street, c.StreetNumber, c.AddressID, c.IsAdmin,
		c.RegistrationDate, c.Photo, c.GoogleID)
	if err != nil {
		if r.dialect.IsDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = uint64(id)
	return nil
}

func (r *ClientRepo) getOne(ctx context.Context, where string, arg any) (*model.Client, error) {
	c, err := scanClient(r.db.QueryRowContext(ctx, `SELECT `+clientColumns+` WHERE `+where+` LIMIT 1`, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrClientNotFound
	}
	return c, err
}

// GetByID fetches a client by id.
func (r *ClientRepo) GetByID(ctx context.Context, id uint64) (*model.Client, error) {
	return r.getOne(ctx, "c.id = ?", id)
}

// GetByEmail fetches a client by normalised email.
func (r *ClientRepo) GetByEmail(ctx context.Context, email string) (*model.Client, error) {
	return r.getOne(ctx, "c.email = ?", strings.ToLower(strings.TrimSpace(email)))
}

// GetByGoogleID fetches the client linked to a Google account subject.
func (r *ClientRepo) GetByGoogleID(ctx context.Context, googleID string) (*model.Client, error) {
	return r.getOne(ctx, "c.google_id = ?", googleID)
}

// ExistsTx reports whether a client row exists, inside tx.
func (r *ClientRepo) ExistsTx(ctx context.Context, tx *sql.Tx, id uint64) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM client WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// LinkGoogle stores the Google subject on an existing account.
func (r *ClientRepo) LinkGoogle(ctx context.Context, id uint64, googleID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE client SET google_id = ? WHERE id = ?`, googleID, id)
	if r.dialect.IsDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

// List returns one page of clients, newest registrations first.
func (r *ClientRepo) List(ctx context.Context, f ClientFilter, p Page) (Result[model.Client], error) {
	p = p.Normalize()
	var cond conditions
	cond.contains("c.username", strings.TrimSpace(f.Username))

	out := Result[model.Client]{Rows: make([]model.Client, 0)}
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM client c WHERE `+cond.sql(), cond.args...).Scan(&out.Total); err != nil {
		return out, err
	}
	args := append(append([]any{}, cond.args...), p.Limit, p.Offset())
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+clientColumns+` WHERE `+cond.sql()+` ORDER BY c.registration_date DESC, c.id DESC LIMIT ? OFFSET ?`,
		args...)
	if err != nil {
		return out, err
	}
	defer rows.Close()
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return out, err
		}
		out.Rows = append(out.Rows, *c)
	}
	return out, rows.Err()
}

// Update applies the non-nil fields of patch.  It returns ErrNoChange for an
// empty patch, ErrClientNotFound for an unknown id and ErrDuplicate when the
// new username or email is taken.
func (r *ClientRepo) Update(ctx context.Context, id uint64, patch ClientPatch) error {
	var a assignments
	setIf(&a, "username", patch.Username)
	if patch.Email != nil {
		a.set("email", strings.ToLower(strings.TrimSpace(*patch.Email)))
	}
	setIf(&a, "password_hash", patch.PasswordHash)
	setIf(&a, "street", patch.Street)
	setIf(&a, "street_number", patch.StreetNumber)
	setIf(&a, "address_id", patch.AddressID)
	setIf(&a, "photo", patch.Photo)
	setIf(&a, "is_admin", patch.IsAdmin)
	if a.empty() {
		return ErrNoChange
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `UPDATE client SET `+a.sql()+` WHERE id = ?`, append(a.args, id)...)
	if r.dialect.IsDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

// Delete removes a client together with their posts, reservations and
// comments, and everything hanging off those posts.
func (r *ClientRepo) Delete(ctx context.Context, id uint64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	var one int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM client WHERE id = ?`, id).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrClientNotFound
		}
		return err
	}
	const ownPosts = `SELECT id FROM post WHERE client_id = ?`
	stmts := []string{
		`DELETE FROM comment WHERE client_id = ? OR post_id IN (` + ownPosts + `)`,
		`DELETE FROM reservation WHERE client_id = ? OR post_id IN (` + ownPosts + `)`,
		`DELETE FROM post_category WHERE post_id IN (` + ownPosts + `)`,
	}
	for i, s := range stmts {
		args := []any{id, id}
		if i == len(stmts)-1 {
			args = args[:1]
		}
		if _, err := tx.ExecContext(ctx, s, args...); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM post WHERE client_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM client WHERE id = ?`, id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
