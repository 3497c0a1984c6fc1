package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/donation-market/internal/model"
)

// StatsRepo computes the dashboard counters.
type StatsRepo struct {
	db *sql.DB
}

func NewStatsRepo(db *sql.DB) *StatsRepo { return &StatsRepo{db: db} }

// Totals counts posts, reservations, withdrawals and active users.  A user
// is active when they published a post or hold a reservation.
func (r *StatsRepo) Totals(ctx context.Context) (model.Stats, error) {
	var s model.Stats
	const q = `SELECT
		(SELECT COUNT(*) FROM post),
		(SELECT COUNT(*) FROM reservation),
		(SELECT COUNT(*) FROM reservation WHERE reservation_status = ?),
		(SELECT COUNT(*) FROM (
			SELECT client_id FROM post
			UNION
			SELECT client_id FROM reservation
		) u)`
	err := r.db.QueryRowContext(ctx, q, model.ReservationWithdrawal).Scan(
		&s.TotalPosts, &s.TotalReservations, &s.Withdrawals, &s.ActiveUsers)
	return s, err
}
