package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/donation-market/internal/model"
)

// PostRepo manages posts and their category links.
type PostRepo struct {
	db      *sql.DB
	dialect Dialect
}

// NewPostRepo constructs a PostRepo with the given DB handle.
func NewPostRepo(db *sql.DB, d Dialect) *PostRepo { return &PostRepo{db: db, dialect: d} }

// DB exposes the underlying sql.DB so services can begin transactions
// spanning several repositories.
func (r *PostRepo) DB() *sql.DB { return r.db }

// Dialect returns the SQL dialect the repository was built for.
func (r *PostRepo) Dialect() Dialect { return r.dialect }

// PostFilter narrows Search.  Zero values disable a filter.
type PostFilter struct {
	City       string // case-insensitive substring of the city
	Status     string // exact post_status
	Username   string // case-insensitive substring of the owner's username
	CategoryID uint64
	ClientID   uint64
}

// PostPatch lists the columns a post update may touch.
type PostPatch struct {
	Title          *string
	Description    *string
	NumberOfPlaces *int
	Status         *string
	Photo          *string
	Street         *string
	StreetNumber   *string
	AddressID      *uint64
}

func (p PostPatch) empty() bool {
	return p.Title == nil && p.Description == nil && p.NumberOfPlaces == nil && p.Status == nil &&
		p.Photo == nil && p.Street == nil && p.StreetNumber == nil && p.AddressID == nil
}

const confirmedCountSQL = `(SELECT COUNT(*) FROM reservation rr WHERE rr.post_id = p.id AND rr.reservation_status = 'confirmed')`

const postDetailColumns = `p.id, p.title, p.description, p.number_of_places, p.post_status, p.photo,
	p.street, p.street_number, p.address_id, p.client_id, p.post_date,
	c.username, a.city, a.postal_code, ` + confirmedCountSQL

const postFrom = ` FROM post p
	JOIN client c  ON c.id = p.client_id
	JOIN address a ON a.id = p.address_id`

func scanPostDetail(s scanner) (*model.PostDetail, error) {
	var (
		d         model.PostDetail
		photo     sql.NullString
		confirmed int
	)
	if err := s.Scan(&d.ID, &d.Title, &d.Description, &d.NumberOfPlaces, &d.Status, &photo,
		&d.Street, &d.StreetNumber, &d.AddressID, &d.ClientID, &d.Date,
		&d.Username, &d.City, &d.PostalCode, &confirmed); err != nil {
		return nil, err
	}
	d.Photo = nullString(photo)
	d.PlacesRemaining = max(d.NumberOfPlaces-confirmed, 0)
	d.Categories = []model.Category{}
	return &d, nil
}

// CreateTx inserts p and links it to categoryIDs inside tx.  The caller
// must commit or roll back.
func (r *PostRepo) CreateTx(ctx context.Context, tx *sql.Tx, p *model.Post, categoryIDs []uint64) error {
	if p.Status == "" {
		p.Status = model.PostAvailable
	}
	if p.Date.IsZero() {
		p.Date = now()
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO post (title, description, number_of_places, post_status, photo, street, street_number, address_id, client_id, post_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Title, p.Description, p.NumberOfPlaces, p.Status, p.Photo, p.Street, p.StreetNumber,
		p.AddressID, p.ClientID, p.Date)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	return linkCategoriesTx(ctx, tx, p.ID, categoryIDs)
}

// Create runs CreateTx in its own transaction.
func (r *PostRepo) Create(ctx context.Context, p *model.Post, categoryIDs []uint64) error {
	return r.inTx(ctx, func(tx *sql.Tx) error { return r.CreateTx(ctx, tx, p, categoryIDs) })
}

func linkCategoriesTx(ctx context.Context, tx *sql.Tx, postID uint64, categoryIDs []uint64) error {
	for _, cid := range uniqueIDs(categoryIDs) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO post_category (post_id, category_id) VALUES (?, ?)`, postID, cid); err != nil {
			return err
		}
	}
	return nil
}

// GetDetail returns a post with its owner name, city, categories and the
// number of places still free.
func (r *PostRepo) GetDetail(ctx context.Context, id uint64) (*model.PostDetail, error) {
	d, err := scanPostDetail(r.db.QueryRowContext(ctx,
		`SELECT `+postDetailColumns+postFrom+` WHERE p.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, err
	}
	cats, err := listByPosts(ctx, r.db, []uint64{id})
	if err != nil {
		return nil, err
	}
	if c, ok := cats[id]; ok {
		d.Categories = c
	}
	return d, nil
}

// Search returns one page of posts matching f, newest first.
func (r *PostRepo) Search(ctx context.Context, f PostFilter, pg Page) (Result[model.PostDetail], error) {
	pg = pg.Normalize()
	var cond conditions
	cond.upperContains("a.city", strings.TrimSpace(f.City))
	cond.contains("c.username", strings.TrimSpace(f.Username))
	if f.Status != "" {
		cond.add("p.post_status = ?", f.Status)
	}
	if f.CategoryID != 0 {
		cond.add("EXISTS (SELECT 1 FROM post_category pc WHERE pc.post_id = p.id AND pc.category_id = ?)", f.CategoryID)
	}
	if f.ClientID != 0 {
		cond.add("p.client_id = ?", f.ClientID)
	}

	out := Result[model.PostDetail]{Rows: make([]model.PostDetail, 0)}
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*)`+postFrom+` WHERE `+cond.sql(), cond.args...).Scan(&out.Total); err != nil {
		return out, err
	}

	args := append(append([]any{}, cond.args...), pg.Limit, pg.Offset())
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+postDetailColumns+postFrom+` WHERE `+cond.sql()+
			` ORDER BY p.post_date DESC, p.id DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return out, err
	}
	defer rows.Close()
	ids := make([]uint64, 0, pg.Limit)
	for rows.Next() {
		d, err := scanPostDetail(rows)
		if err != nil {
			return out, err
		}
		out.Rows = append(out.Rows, *d)
		ids = append(ids, d.ID)
	}
	if err := rows.Err(); err != nil {
		return out, err
	}
	rows.Close()

	cats, err := listByPosts(ctx, r.db, ids)
	if err != nil {
		return out, err
	}
	for i := range out.Rows {
		if c, ok := cats[out.Rows[i].ID]; ok {
			out.Rows[i].Categories = c
		}
	}
	return out, nil
}

// LockTx reads the post row inside tx, taking a row lock where the driver
// supports one.  Reservations on the same post serialise on this lock.
func (r *PostRepo) LockTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Post, error) {
	var (
		p     model.Post
		photo sql.NullString
	)
	err := tx.QueryRowContext(ctx,
		`SELECT id, title, description, number_of_places, post_status, photo, street, street_number, address_id, client_id, post_date
		   FROM post WHERE id = ?`+r.dialect.ForUpdate(), id,
	).Scan(&p.ID, &p.Title, &p.Description, &p.NumberOfPlaces, &p.Status, &photo,
		&p.Street, &p.StreetNumber, &p.AddressID, &p.ClientID, &p.Date)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Photo = nullString(photo)
	return &p, nil
}

// OwnerID returns the client id owning the post.
func (r *PostRepo) OwnerID(ctx context.Context, id uint64) (uint64, error) {
	var owner uint64
	err := r.db.QueryRowContext(ctx, `SELECT client_id FROM post WHERE id = ?`, id).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrPostNotFound
	}
	return owner, err
}

// Update applies patch and, when categories is non-nil, replaces the post's
// category links.  Lowering number_of_places below the number of confirmed
// reservations returns ErrConflict.
func (r *PostRepo) Update(ctx context.Context, id uint64, patch PostPatch, categories *[]uint64) error {
	if patch.empty() && categories == nil {
		return ErrNoChange
	}
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := r.LockTx(ctx, tx, id); err != nil {
			return err
		}
		if patch.NumberOfPlaces != nil {
			confirmed, err := countConfirmedTx(ctx, tx, id)
			if err != nil {
				return err
			}
			if *patch.NumberOfPlaces < confirmed {
				return ErrConflict
			}
		}
		var a assignments
		setIf(&a, "title", patch.Title)
		setIf(&a, "description", patch.Description)
		setIf(&a, "number_of_places", patch.NumberOfPlaces)
		setIf(&a, "post_status", patch.Status)
		setIf(&a, "photo", patch.Photo)
		setIf(&a, "street", patch.Street)
		setIf(&a, "street_number", patch.StreetNumber)
		setIf(&a, "address_id", patch.AddressID)
		if !a.empty() {
			if _, err := tx.ExecContext(ctx, `UPDATE post SET `+a.sql()+` WHERE id = ?`, append(a.args, id)...); err != nil {
				return err
			}
		}
		if categories != nil {
			if _, err := tx.ExecContext(ctx, `DELETE FROM post_category WHERE post_id = ?`, id); err != nil {
				return err
			}
			if err := linkCategoriesTx(ctx, tx, id, *categories); err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete removes a post with its category links, reservations and comments.
func (r *PostRepo) Delete(ctx context.Context, id uint64) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := r.LockTx(ctx, tx, id); err != nil {
			return err
		}
		for _, q := range []string{
			`DELETE FROM comment WHERE post_id = ?`,
			`DELETE FROM reservation WHERE post_id = ?`,
			`DELETE FROM post_category WHERE post_id = ?`,
			`DELETE FROM post WHERE id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// inTx runs fn in a transaction, committing when fn returns nil.
func (r *PostRepo) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
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
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func countConfirmedTx(ctx context.Context, tx *sql.Tx, postID uint64) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reservation WHERE post_id = ? AND reservation_status = ?`,
		postID, model.ReservationConfirmed).Scan(&n)
	return n, err
}

// now is the timestamp written into date columns.  Second precision keeps
// the two drivers ordering rows identically.
func now() time.Time { return time.Now().UTC().Truncate(time.Second) }
