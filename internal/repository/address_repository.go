package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/donation-market/internal/model"
)

// AddressRepo reads and seeds the address reference table.
type AddressRepo struct {
	db      *sql.DB
	dialect Dialect
}

// NewAddressRepo returns an AddressRepo bound to db.
func NewAddressRepo(db *sql.DB, d Dialect) *AddressRepo { return &AddressRepo{db: db, dialect: d} }

// normalizeAddress trims both parts and upper-cases the city so that
// "lyon" and "Lyon " resolve to the same row.
func normalizeAddress(city, postal string) (string, string) {
	return strings.ToUpper(strings.TrimSpace(city)), strings.TrimSpace(postal)
}

// GetByID returns an address or ErrAddressNotFound.
func (r *AddressRepo) GetByID(ctx context.Context, id uint64) (*model.Address, error) {
	var a model.Address
	err := r.db.QueryRowContext(ctx,
		`SELECT id, city, postal_code FROM address WHERE id = ?`, id,
	).Scan(&a.ID, &a.City, &a.PostalCode)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAddressNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// FindOrCreate returns the id of the (city, postal code) row, inserting it
// when it does not exist yet.  Concurrent inserts of the same pair are
// resolved by the unique key.
func (r *AddressRepo) FindOrCreate(ctx context.Context, city, postal string) (uint64, error) {
	city, postal = normalizeAddress(city, postal)
	const sel = `SELECT id FROM address WHERE city = ? AND postal_code = ?`
	var id uint64
	err := r.db.QueryRowContext(ctx, sel, city, postal).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	if _, err := r.db.ExecContext(ctx,
		r.dialect.InsertIgnore()+` INTO address (city, postal_code) VALUES (?, ?)`, city, postal); err != nil {
		return 0, err
	}
	if err := r.db.QueryRowContext(ctx, sel, city, postal).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// ListCities returns addresses whose city or postal code contains q,
// ordered by city.  An empty q lists everything up to limit rows.
func (r *AddressRepo) ListCities(ctx context.Context, q string, limit int) ([]model.Address, error) {
	if limit < 1 || limit > 1000 {
		limit = 1000
	}
	var cond conditions
	if q = strings.TrimSpace(q); q != "" {
		// city is stored upper-cased; postal codes are digits.
		needle := "%" + escapeLike(strings.ToUpper(q)) + "%"
		cond.add("(city LIKE ? OR postal_code LIKE ?)", needle, needle)
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, city, postal_code FROM address WHERE `+cond.sql()+` ORDER BY city, postal_code LIMIT ?`,
		append(cond.args, limit)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Address, 0)
	for rows.Next() {
		var a model.Address
		if err := rows.Scan(&a.ID, &a.City, &a.PostalCode); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// BulkUpsert inserts the given pairs in batches inside one transaction,
// skipping pairs that already exist.  It returns the number of new rows.
func (r *AddressRepo) BulkUpsert(ctx context.Context, addrs []model.Address) (int64, error) {
	if len(addrs) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	const batch = 500
	var inserted int64
	for start := 0; start < len(addrs); start += batch {
		end := min(start+batch, len(addrs))
		query := r.dialect.InsertIgnore() + ` INTO address (city, postal_code) VALUES `
		args := make([]any, 0, (end-start)*2)
		for i, a := range addrs[start:end] {
			if i > 0 {
				query += ","
			}
			query += "(?, ?)"
			city, postal := normalizeAddress(a.City, a.PostalCode)
			args = append(args, city, postal)
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, err
		}
		n, _ := res.RowsAffected()
		inserted += n
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	committed = true
	return inserted, nil
}
