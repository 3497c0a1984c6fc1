package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/donation-market/internal/model"
)

// CategoryRepo manages the category_product lookup table.
type CategoryRepo struct {
	db      *sql.DB
	dialect Dialect
}

func NewCategoryRepo(db *sql.DB, d Dialect) *CategoryRepo { return &CategoryRepo{db: db, dialect: d} }

// List returns every category ordered by name.
func (r *CategoryRepo) List(ctx context.Context) ([]model.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name_category FROM category_product ORDER BY name_category, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Category, 0)
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *CategoryRepo) GetByID(ctx context.Context, id uint64) (*model.Category, error) {
	var c model.Category
	err := r.db.QueryRowContext(ctx, `SELECT id, name_category FROM category_product WHERE id = ?`, id).Scan(&c.ID, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCategoryNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Create inserts a category.  Names are unique.
func (r *CategoryRepo) Create(ctx context.Context, name string) (*model.Category, error) {
	name = strings.TrimSpace(name)
	res, err := r.db.ExecContext(ctx, `INSERT INTO category_product (name_category) VALUES (?)`, name)
	if err != nil {
		if r.dialect.IsDuplicate(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &model.Category{ID: uint64(id), Name: name}, nil
}

// Rename changes the display name of a category.
func (r *CategoryRepo) Rename(ctx context.Context, id uint64, name string) error {
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `UPDATE category_product SET name_category = ? WHERE id = ?`, strings.TrimSpace(name), id)
	if r.dialect.IsDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

// Delete removes a category and its post links.  It refuses with
// ErrCategoryInUse while some post is tagged with this category alone.
func (r *CategoryRepo) Delete(ctx context.Context, id uint64) error {
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
	var sole int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM post_category pc
		  WHERE pc.category_id = ?
		    AND NOT EXISTS (SELECT 1 FROM post_category o
		                     WHERE o.post_id = pc.post_id AND o.category_id <> pc.category_id)`,
		id).Scan(&sole); err != nil {
		return err
	}
	if sole > 0 {
		return ErrCategoryInUse
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM post_category WHERE category_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM category_product WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrCategoryNotFound
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// ExistAll returns ErrCategoryNotFound unless every id names a category.
// Duplicate ids are tolerated.
func (r *CategoryRepo) ExistAll(ctx context.Context, ids []uint64) error {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil
	}
	var n int
	q := `SELECT COUNT(*) FROM category_product WHERE id IN (` + placeholders(len(ids)) + `)`
	if err := r.db.QueryRowContext(ctx, q, idArgs(ids)...).Scan(&n); err != nil {
		return err
	}
	if n != len(ids) {
		return ErrCategoryNotFound
	}
	return nil
}

// listByPosts loads the categories of many posts with one query.
func listByPosts(ctx context.Context, q querier, postIDs []uint64) (map[uint64][]model.Category, error) {
	out := make(map[uint64][]model.Category, len(postIDs))
	if len(postIDs) == 0 {
		return out, nil
	}
	rows, err := q.QueryContext(ctx,
		`SELECT pc.post_id, c.id, c.name_category
		   FROM post_category pc
		   JOIN category_product c ON c.id = pc.category_id
		  WHERE pc.post_id IN (`+placeholders(len(postIDs))+`)
		  ORDER BY pc.post_id, c.id`, idArgs(postIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			postID uint64
			c      model.Category
		)
		if err := rows.Scan(&postID, &c.ID, &c.Name); err != nil {
			return nil, err
		}
		out[postID] = append(out[postID], c)
	}
	return out, rows.Err()
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func idArgs(ids []uint64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func uniqueIDs(ids []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
